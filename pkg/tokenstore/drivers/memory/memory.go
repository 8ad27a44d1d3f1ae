// Package memory is the process-scoped token tier. It is what a browser tab's
// session storage is to the web client: gone when the process exits.
package memory

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/companion/pkg/tokenstore"
)

type Tier struct {
	mu  sync.RWMutex
	tok *tokenstore.Token
}

var _ tokenstore.Tier = (*Tier)(nil)

func New() *Tier { return &Tier{} }

func (t *Tier) Load(ctx context.Context) (tokenstore.Token, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.tok == nil {
		return tokenstore.Token{}, tokenstore.ErrNotFound
	}
	return *t.tok, nil
}

func (t *Tier) Save(ctx context.Context, tok tokenstore.Token) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tok = &tok
	return nil
}

func (t *Tier) Delete(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tok = nil
	return nil
}
