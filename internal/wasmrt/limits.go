package wasmrt

import "time"

// Default resource limits for a single module invocation, matching the
// hard caps a WASM tool call is expected to respect.
const (
	// DefaultFuelUnits bounds the number of host-function checkpoints a
	// single call may spend before it is killed. See the fuel-metering
	// note in DESIGN.md: wazero's interpreter has no native instruction
	// counter, so this is enforced as a host-call budget rather than a
	// true instruction count.
	DefaultFuelUnits = 10_000_000

	// DefaultMemoryLimitBytes caps a module instance's linear memory.
	DefaultMemoryLimitBytes = 10 << 20 // 10MB

	// DefaultEpochTick is how often the epoch-deadline ticker fires,
	// forcing a cooperative check of the wall-clock deadline.
	DefaultEpochTick = 500 * time.Millisecond

	// DefaultCallbackTimeout bounds a single Execute call end to end.
	DefaultCallbackTimeout = 30 * time.Second

	// DefaultMaxHTTPRequests bounds outbound HTTP calls per invocation,
	// independent of any per-capability override.
	DefaultMaxHTTPRequests = 50

	// DefaultMaxToolInvokes bounds tool_invoke host calls per invocation.
	DefaultMaxToolInvokes = 20
)

// wasmPageSize is the WebAssembly linear memory page size (64KiB).
const wasmPageSize = 64 * 1024

// memoryLimitPages converts a byte cap to the page count wazero's
// RuntimeConfig.WithMemoryLimitPages expects.
func memoryLimitPages(bytes int) uint32 {
	pages := bytes / wasmPageSize
	if bytes%wasmPageSize != 0 {
		pages++
	}
	if pages <= 0 {
		pages = 1
	}
	return uint32(pages)
}

// Limits bundles the resource budget for one module invocation.
type Limits struct {
	FuelUnits        int64
	MemoryLimitBytes int
	EpochTick        time.Duration
	CallbackTimeout  time.Duration
	MaxHTTPRequests  int
	MaxToolInvokes   int
}

// DefaultLimits returns the default per-call resource budget.
func DefaultLimits() Limits {
	return Limits{
		FuelUnits:        DefaultFuelUnits,
		MemoryLimitBytes: DefaultMemoryLimitBytes,
		EpochTick:        DefaultEpochTick,
		CallbackTimeout:  DefaultCallbackTimeout,
		MaxHTTPRequests:  DefaultMaxHTTPRequests,
		MaxToolInvokes:   DefaultMaxToolInvokes,
	}
}

// ChannelLimits extends Limits for the "channels" variant of sandboxed
// execution, where a module may also emit outbound messages and poll for
// inbound ones.
type ChannelLimits struct {
	Limits
	// WorkspaceWritePrefix is the only path prefix a channels-variant
	// module may write under.
	WorkspaceWritePrefix string
	// PollInterval is clamped to no less than this, to bound how often a
	// module can busy-poll for inbound messages.
	MinPollInterval time.Duration
	// MaxEmitsPerMinute rate-limits outbound message emission.
	MaxEmitsPerMinute int
	// MaxMessageBytes caps a single emitted message's size.
	MaxMessageBytes int
}

// DefaultChannelLimits returns the default channels-variant budget.
func DefaultChannelLimits() ChannelLimits {
	return ChannelLimits{
		Limits:               DefaultLimits(),
		WorkspaceWritePrefix: "outbox/",
		MinPollInterval:      2 * time.Second,
		MaxEmitsPerMinute:    30,
		MaxMessageBytes:      64 * 1024,
	}
}
