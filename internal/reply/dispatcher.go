package reply

import (
	"context"
	"log/slog"
	"strings"
)

// Payload is one outbound reply unit: free text plus zero or more media URLs.
type Payload struct {
	Text      string
	MediaURLs []string
}

// DeliverFunc performs the vendor send for one payload.
type DeliverFunc func(ctx context.Context, payload Payload) error

// ErrorFunc observes a failed delivery. kind is "block" or "final".
type ErrorFunc func(err error, kind string)

// DispatcherOptions configure a Dispatcher.
type DispatcherOptions struct {
	Deliver DeliverFunc
	OnError ErrorFunc

	// ChunkLimit bounds each delivered text chunk (0 uses DefaultChunkLimit).
	ChunkLimit int
	// ChunkMode is "length" (default) or "newline".
	ChunkMode string
	// DisableBlockStreaming suppresses intermediate block delivery; blocks
	// are buffered and flushed with the final payload instead.
	DisableBlockStreaming bool
}

// DefaultChunkLimit is the fallback outbound chunk size.
const DefaultChunkLimit = 4000

// Dispatcher buffers reply blocks and delivers them through a vendor send
// callback. Failures go to OnError and are never propagated: by the time a
// reply is dispatched the inbound HTTP exchange has already completed.
type Dispatcher struct {
	opts    DispatcherOptions
	pending []string
}

// NewDispatcher creates a Dispatcher. Deliver must be non-nil.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.ChunkLimit <= 0 {
		opts.ChunkLimit = DefaultChunkLimit
	}
	return &Dispatcher{opts: opts}
}

// SendBlock delivers one intermediate text block. With block streaming
// disabled the block is held until Flush.
func (d *Dispatcher) SendBlock(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if d.opts.DisableBlockStreaming {
		d.pending = append(d.pending, text)
		return
	}
	d.deliverText(ctx, text, "block")
}

// Flush delivers the final payload, prepending any buffered blocks.
func (d *Dispatcher) Flush(ctx context.Context, payload Payload) {
	if len(d.pending) > 0 {
		buffered := strings.Join(d.pending, "\n\n")
		d.pending = nil
		if strings.TrimSpace(payload.Text) != "" {
			payload.Text = buffered + "\n\n" + payload.Text
		} else {
			payload.Text = buffered
		}
	}
	if strings.TrimSpace(payload.Text) == "" && len(payload.MediaURLs) == 0 {
		return
	}

	chunks := ChunkText(payload.Text, d.opts.ChunkLimit, d.opts.ChunkMode)
	if len(chunks) == 0 {
		chunks = []string{""}
	}
	for i, chunk := range chunks {
		p := Payload{Text: chunk}
		if i == len(chunks)-1 {
			p.MediaURLs = payload.MediaURLs
		}
		if err := d.opts.Deliver(ctx, p); err != nil {
			d.fail(err, "final")
			return
		}
	}
}

func (d *Dispatcher) deliverText(ctx context.Context, text, kind string) {
	for _, chunk := range ChunkText(text, d.opts.ChunkLimit, d.opts.ChunkMode) {
		if err := d.opts.Deliver(ctx, Payload{Text: chunk}); err != nil {
			d.fail(err, kind)
			return
		}
	}
}

func (d *Dispatcher) fail(err error, kind string) {
	if d.opts.OnError != nil {
		d.opts.OnError(err, kind)
		return
	}
	slog.Error("reply delivery failed", "kind", kind, "error", err)
}

// ChunkText splits text into chunks of at most limit bytes. In "length"
// mode splits prefer the last newline past the midpoint of the window; in
// "newline" mode lines are greedily packed and only oversize single lines
// are hard-split.
func ChunkText(text string, limit int, mode string) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultChunkLimit
	}
	if mode == "newline" {
		return chunkByNewline(text, limit)
	}
	return chunkByLength(text, limit)
}

func chunkByLength(text string, limit int) []string {
	var chunks []string
	for len(text) > 0 {
		if len(text) <= limit {
			chunks = append(chunks, text)
			break
		}
		cutAt := limit
		if idx := strings.LastIndex(text[:limit], "\n"); idx > limit/2 {
			cutAt = idx + 1
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}

func chunkByNewline(text string, limit int) []string {
	var chunks []string
	var current strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if len(line) > limit {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, chunkByLength(line, limit)...)
			continue
		}
		extra := len(line)
		if current.Len() > 0 {
			extra++
		}
		if current.Len()+extra > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
