package channels

import (
	"context"

	"github.com/nextlevelbuilder/clawbridge/internal/activity"
	"github.com/nextlevelbuilder/clawbridge/internal/reply"
	"github.com/nextlevelbuilder/clawbridge/internal/store"
)

// InboundSink receives an admitted inbound message together with a
// dispatcher for replying on the originating conversation.
type InboundSink func(ctx context.Context, msg *reply.InboundContext, out *reply.Dispatcher)

// Host bundles the host-side collaborators a running account depends on.
type Host struct {
	Pairing  store.PairingStore
	Sessions store.SessionStore
	Activity *activity.Recorder
	Inbound  InboundSink
}
