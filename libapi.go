package kerneltest

import (
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	runtimepkg "github.com/drblury/kerneltest/internal/runtime"
	configpkg "github.com/drblury/kerneltest/internal/runtime/config"
	containerpkg "github.com/drblury/kerneltest/internal/runtime/container"
	controllerpkg "github.com/drblury/kerneltest/internal/runtime/controller"
	declarativepkg "github.com/drblury/kerneltest/internal/runtime/declarative"
	descriptionpkg "github.com/drblury/kerneltest/internal/runtime/description"
	dmrpkg "github.com/drblury/kerneltest/internal/runtime/dmr"
	errspkg "github.com/drblury/kerneltest/internal/runtime/errors"
	extensionpkg "github.com/drblury/kerneltest/internal/runtime/extension"
	formatpkg "github.com/drblury/kerneltest/internal/runtime/format"
	idspkg "github.com/drblury/kerneltest/internal/runtime/ids"
	jsoncodec "github.com/drblury/kerneltest/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/kerneltest/internal/runtime/logging"
	modelpkg "github.com/drblury/kerneltest/internal/runtime/model"
	pathmgrpkg "github.com/drblury/kerneltest/internal/runtime/pathmgr"
	registrypkg "github.com/drblury/kerneltest/internal/runtime/registry"
	transformpkg "github.com/drblury/kerneltest/internal/runtime/transform"
	validationpkg "github.com/drblury/kerneltest/internal/runtime/validation"
	newtransport "github.com/drblury/kerneltest/transport"
)

type (
	Config        = configpkg.Config
	Session       = runtimepkg.Session
	SessionOption = runtimepkg.SessionOption
	CreateOptions = runtimepkg.CreateOptions
	Builder       = runtimepkg.Builder

	KernelServices       = runtimepkg.KernelServices
	MainKernelServices   = runtimepkg.MainKernelServices
	LegacyKernelServices = runtimepkg.LegacyKernelServices

	// Boot lifecycle hooks
	BootContext = runtimepkg.BootContext
	BootHooks   = runtimepkg.BootHooks

	// Kernel metrics
	KernelMetrics         = runtimepkg.KernelMetrics
	KernelMetricsSnapshot = runtimepkg.KernelMetricsSnapshot

	// Model values and addresses
	ModelNode   = dmrpkg.Node
	PathAddress = modelpkg.PathAddress
	PathElement = modelpkg.PathElement
	Version     = modelpkg.Version

	// Controllers and initialization
	Controller               = controllerpkg.Controller
	ControllerFactory        = controllerpkg.Factory
	ControllerFactoryFunc    = controllerpkg.FactoryFunc
	FactoryParams            = controllerpkg.FactoryParams
	FactoryRegistry          = controllerpkg.FactoryRegistry
	Initialization           = controllerpkg.Initialization
	AdditionalInitialization = controllerpkg.AdditionalInitialization
	SystemProperty           = controllerpkg.SystemProperty
	ExtraService             = controllerpkg.ExtraService
	PathEntry                = pathmgrpkg.Entry

	// Extensions and registrations
	Extension            = extensionpkg.Extension
	ExtensionContext     = extensionpkg.Context
	ExtensionRegistry    = extensionpkg.Registry
	ResourceRegistration = registrypkg.ResourceRegistration
	AttributeDefinition  = registrypkg.AttributeDefinition
	OperationEntry       = registrypkg.OperationEntry
	OperationContext     = registrypkg.OperationContext
	Schema               = declarativepkg.Schema

	// Transformers
	Transformers         = transformpkg.Transformers
	ResourceTransformer  = transformpkg.ResourceTransformer
	OperationTransformer = transformpkg.OperationTransformer
	TransformContext     = transformpkg.Context

	DescriptionStrategy = descriptionpkg.Strategy
	ValidatorFilter     = validationpkg.Filter
	Parser              = formatpkg.Parser

	ContainerEvent = containerpkg.Event

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigValidationError = errspkg.ConfigValidationError
	OperationFailure      = errspkg.OperationFailure

	// Event-sink transports
	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

var (
	NewSession     = runtimepkg.NewSession
	DefaultSession = runtimepkg.DefaultSession
	Create         = runtimepkg.Create

	WithConfig              = runtimepkg.WithConfig
	WithLogger              = runtimepkg.WithLogger
	WithSequence            = runtimepkg.WithSequence
	WithFactoryRegistry     = runtimepkg.WithFactoryRegistry
	WithDescriptionStrategy = runtimepkg.WithDescriptionStrategy
	WithRegisterer          = runtimepkg.WithRegisterer
	WithBootHooks           = runtimepkg.WithBootHooks
	WithTracerProvider      = runtimepkg.WithTracerProvider

	// Boot lifecycle hooks
	LoggingHooks = runtimepkg.LoggingHooks
	MetricsHooks = runtimepkg.MetricsHooks

	NewKernelMetrics = runtimepkg.NewKernelMetrics

	DefaultConfig  = configpkg.Default
	ValidateConfig = configpkg.ValidateConfig

	// Addresses, versions and operations
	Element                          = modelpkg.Element
	WildcardElement                  = modelpkg.WildcardElement
	Address                          = modelpkg.Address
	Subsystem                        = modelpkg.Subsystem
	ParseAddress                     = modelpkg.ParseAddress
	NewVersion                       = modelpkg.NewVersion
	ParseVersion                     = modelpkg.ParseVersion
	CreateOperation                  = modelpkg.CreateOperation
	CreateAddOperation               = modelpkg.CreateAddOperation
	CreateRemoveOperation            = modelpkg.CreateRemoveOperation
	CreateReadAttributeOperation     = modelpkg.CreateReadAttributeOperation
	CreateWriteAttributeOperation    = modelpkg.CreateWriteAttributeOperation
	CreateReadResourceOperation      = modelpkg.CreateReadResourceOperation
	CreateCompositeOperation         = modelpkg.CreateCompositeOperation
	CreateReadChildrenNamesOperation = modelpkg.CreateReadChildrenNamesOperation

	// Model values
	NewModelNode = dmrpkg.New
	FromString   = dmrpkg.FromString
	FromInt      = dmrpkg.FromInt
	FromBool     = dmrpkg.FromBool
	ParseJSON    = dmrpkg.ParseJSON
	Diff         = dmrpkg.Diff

	// Controllers
	DefaultControllerFactory = controllerpkg.DefaultFactory
	NewLegacy712Factory      = controllerpkg.NewLegacy712Factory
	NewFactoryRegistry       = controllerpkg.NewFactoryRegistry

	// Extensions
	NewExtension         = extensionpkg.New
	NewExtensionRegistry = extensionpkg.NewRegistry
	ParseSchema          = declarativepkg.Parse
	LoadSchema           = declarativepkg.Load

	// Transformers
	RenameAttribute   = transformpkg.RenameAttribute
	DiscardAttributes = transformpkg.DiscardAttributes
	RenameParameter   = transformpkg.RenameParameter
	RejectOperation   = transformpkg.RejectOperation
	DiscardOperation  = transformpkg.DiscardOperation

	// Descriptions
	ReadFullModelDescription   = descriptionpkg.ReadFullModelDescription
	ReadLegacyModelDescription = descriptionpkg.ReadLegacyModelDescription

	NewValidatorFilter = validationpkg.NewFilter
	ValidateNone       = validationpkg.ValidateNone

	LookupFormat = formatpkg.Lookup
	FormatNames  = formatpkg.Names

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	ErrMainSubsystemRequired      = errspkg.ErrMainSubsystemRequired
	ErrUnknownControllerFactory   = errspkg.ErrUnknownControllerFactory
	ErrResourceNotFound           = errspkg.ErrResourceNotFound
	ErrOperationFailed            = errspkg.ErrOperationFailed
	ErrUnexpectedSuccess          = errspkg.ErrUnexpectedSuccess
	ErrLegacyServicesRequired     = errspkg.ErrLegacyServicesRequired
	ErrLegacyVersionNotLinked     = errspkg.ErrLegacyVersionNotLinked
	ErrLegacyVersionAlreadyLinked = errspkg.ErrLegacyVersionAlreadyLinked
	ErrUnknownFormat              = errspkg.ErrUnknownFormat
	ErrEntryPointMissing          = descriptionpkg.ErrEntryPointMissing

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NopLogger            = loggingpkg.NopLogger

	CreateULID = idspkg.CreateULID

	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build
	GetCapabilities          = newtransport.GetCapabilities
)

// Controller implementation IDs.
const (
	DefaultControllerID = controllerpkg.DefaultID
	Legacy712ID         = controllerpkg.Legacy712ID
)

// LoadConfig reads a Config from defaults, the YAML file at path (when not
// empty), KERNELTEST_ environment variables and the changed flags of fs.
func LoadConfig(path string, fs *pflag.FlagSet) (*Config, error) {
	return configpkg.Load(path, fs)
}

// NewLogger returns a ServiceLogger writing slog text records to w at the
// level configured in conf.
func NewLogger(conf *Config, w io.Writer) ServiceLogger {
	if conf == nil {
		conf = configpkg.Default()
	}
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: conf.SlogLevel()})))
}
