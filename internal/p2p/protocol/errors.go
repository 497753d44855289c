package protocol

import "errors"

// InboundReason enumerates why an inbound update was rejected.
type InboundReason string

const (
	InboundStaleChannel     InboundReason = "StaleChannel"
	InboundStaleUpdate      InboundReason = "StaleUpdate"
	InboundValidationFailed InboundReason = "InboundValidationFailed"
	InboundSaveFailed       InboundReason = "SaveChannelFailed"
	InboundRestoreNeeded    InboundReason = "RestoreNeeded"
	InboundStoreFailure     InboundReason = "StoreFailure"
)

// OutboundReason enumerates why an outbound proposal failed.
type OutboundReason string

const (
	OutboundInvalidParams       OutboundReason = "InvalidParams"
	OutboundCounterpartyFailure OutboundReason = "CounterpartyFailure"
	OutboundSaveFailed          OutboundReason = "SaveChannelFailed"
	OutboundSyncFailure         OutboundReason = "SyncFailure"
	OutboundRestoreNeeded       OutboundReason = "RestoreNeeded"
	OutboundBadSignatures       OutboundReason = "BadSignatures"
	OutboundStoreFailure        OutboundReason = "StoreFailure"
	OutboundChannelNotFound     OutboundReason = "ChannelNotFound"
	OutboundChainReadFailed     OutboundReason = "ChainReadFailed"
	OutboundGenerationFailed    OutboundReason = "GenerationFailed"
)

// InboundError is returned by the inbound processor and is the only error
// type that travels back to the proposer.
//
// Update is the update that triggered the error. LatestUpdate is set on
// StaleUpdate and carries the responder's latest double-signed update so the
// proposer can sync.
type InboundError struct {
	Reason       InboundReason  `json:"reason"`
	Update       *ChannelUpdate `json:"update,omitempty"`
	LatestUpdate *ChannelUpdate `json:"latestUpdate,omitempty"`
	State        *ChannelState  `json:"-"`
	Context      map[string]any `json:"context,omitempty"`
	Err          error          `json:"-"`
}

func NewInboundError(reason InboundReason, update *ChannelUpdate, state *ChannelState, context map[string]any) *InboundError {
	if context == nil {
		context = map[string]any{}
	}
	return &InboundError{Reason: reason, Update: update, State: state, Context: context}
}

func (e *InboundError) Error() string { return string(e.Reason) }

func (e *InboundError) Unwrap() error { return e.Err }

// WithCause records err as the wrapped cause under the given context key.
func (e *InboundError) WithCause(key string, err error) *InboundError {
	if err == nil {
		return e
	}
	e.Err = err
	e.Context[key] = err.Error()
	return e
}

// OutboundError is returned by the outbound initiator.
type OutboundError struct {
	Reason  OutboundReason `json:"reason"`
	Params  *UpdateParams  `json:"params,omitempty"`
	State   *ChannelState  `json:"-"`
	Context map[string]any `json:"context,omitempty"`
	Err     error          `json:"-"`
}

func NewOutboundError(reason OutboundReason, params *UpdateParams, state *ChannelState, context map[string]any) *OutboundError {
	if context == nil {
		context = map[string]any{}
	}
	return &OutboundError{Reason: reason, Params: params, State: state, Context: context}
}

func (e *OutboundError) Error() string { return string(e.Reason) }

func (e *OutboundError) Unwrap() error { return e.Err }

func (e *OutboundError) WithCause(key string, err error) *OutboundError {
	if err == nil {
		return e
	}
	e.Err = err
	e.Context[key] = err.Error()
	return e
}

func IsInboundReason(err error, reason InboundReason) bool {
	var ie *InboundError
	return errors.As(err, &ie) && ie.Reason == reason
}

func IsOutboundReason(err error, reason OutboundReason) bool {
	var oe *OutboundError
	return errors.As(err, &oe) && oe.Reason == reason
}
