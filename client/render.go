package client

import (
	"fmt"
	"io"
	"strings"
)

// Renderer presents the in-progress answer. Begin is called once the relay
// starts streaming, Chunk for every piece of text, and exactly one of Commit
// or Discard at the end.
type Renderer interface {
	Begin()
	Chunk(text string)
	Commit(full string)
	Discard(reason string)
}

// placeholder accumulates the streamed answer.
type placeholder struct {
	b        strings.Builder
	renderer Renderer
}

func newPlaceholder(r Renderer) *placeholder {
	if r == nil {
		r = NopRenderer{}
	}
	r.Begin()
	return &placeholder{renderer: r}
}

func (p *placeholder) append(text string) {
	p.b.WriteString(text)
	p.renderer.Chunk(text)
}

func (p *placeholder) commit() string {
	full := p.b.String()
	p.renderer.Commit(full)
	return full
}

func (p *placeholder) discard(reason string) {
	p.renderer.Discard(reason)
}

type NopRenderer struct{}

func (NopRenderer) Begin()         {}
func (NopRenderer) Chunk(string)   {}
func (NopRenderer) Commit(string)  {}
func (NopRenderer) Discard(string) {}

// WriterRenderer prints chunks to w as they arrive.
type WriterRenderer struct {
	W      io.Writer
	Prefix string
}

func (r WriterRenderer) Begin() {
	fmt.Fprint(r.W, r.Prefix)
}

func (r WriterRenderer) Chunk(text string) {
	fmt.Fprint(r.W, text)
}

func (r WriterRenderer) Commit(string) {
	fmt.Fprintln(r.W)
}

func (r WriterRenderer) Discard(reason string) {
	fmt.Fprintf(r.W, "\n[%s]\n", reason)
}
