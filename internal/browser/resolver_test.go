package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teklif/internal/types"
)

// fakePage resolves only the selectors listed in visible; everything else
// blocks until the attempt context expires.
type fakePage struct {
	visible map[string]bool
	waited  []string
}

func (f *fakePage) WaitVisible(ctx context.Context, d Descriptor) error {
	f.waited = append(f.waited, d.Value)
	if f.visible[d.Value] {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakePage) Navigate(context.Context, string) error           { return nil }
func (f *fakePage) Click(context.Context, Descriptor) error          { return nil }
func (f *fakePage) Fill(context.Context, Descriptor, string) error   { return nil }
func (f *fakePage) Text(context.Context, Descriptor) (string, error) { return "", nil }
func (f *fakePage) Location(context.Context) (string, error)         { return "", nil }
func (f *fakePage) Cookies(context.Context) ([]Cookie, error)        { return nil, nil }
func (f *fakePage) SetCookies(context.Context, []Cookie) error       { return nil }

func TestResolve_FirstMatchWins(t *testing.T) {
	page := &fakePage{visible: map[string]bool{`input[name="username"]`: true}}
	got, err := Resolve(context.Background(), page,
		[]Descriptor{CSS(`input[name="username"]`), CSS(`#username`)}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, `input[name="username"]`, got.Value)
	// second candidate never probed
	assert.Equal(t, []string{`input[name="username"]`}, page.waited)
}

func TestResolve_FallsBackInOrder(t *testing.T) {
	page := &fakePage{visible: map[string]bool{`#kullanici`: true}}
	got, err := Resolve(context.Background(), page,
		[]Descriptor{CSS(`input[name="username"]`), CSS(`#username`), CSS(`#kullanici`)}, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, `#kullanici`, got.Value)
	assert.Equal(t, []string{`input[name="username"]`, `#username`, `#kullanici`}, page.waited)
}

func TestResolve_ExhaustedReportsTried(t *testing.T) {
	page := &fakePage{visible: map[string]bool{}}
	_, err := Resolve(context.Background(), page,
		[]Descriptor{CSS(`#a`), XPath(`//b`)}, time.Second)
	require.Error(t, err)

	var nf *types.ElementNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Len(t, nf.Tried, 2)
	assert.Contains(t, nf.Tried[1], "//b")
}

func TestResolve_EmptyCandidates(t *testing.T) {
	_, err := Resolve(context.Background(), &fakePage{}, nil, time.Second)
	var nf *types.ElementNotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestResolve_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Resolve(ctx, &fakePage{}, []Descriptor{CSS(`#a`)}, time.Second)
	require.ErrorIs(t, err, context.Canceled)
}
