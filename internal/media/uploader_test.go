package media

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	link string
	err  error
	got  []string
}

func (f *fakeUploader) Upload(_ context.Context, name, _ string, r io.Reader) (string, error) {
	b, _ := io.ReadAll(r)
	f.got = append(f.got, name+":"+string(b))
	return f.link, f.err
}

func TestChainFallsBackToNextUploader(t *testing.T) {
	primary := &fakeUploader{err: errors.New("bucket down")}
	secondary := &fakeUploader{link: "https://cdn.example.com/cover.png"}

	link, err := NewChain(nil, primary, secondary).Upload(context.Background(), "cover.png", "image/png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/cover.png", link)
	assert.Equal(t, []string{"cover.png:png"}, primary.got)
	assert.Equal(t, []string{"cover.png:png"}, secondary.got)
}

func TestChainReportsEveryFailure(t *testing.T) {
	a := &fakeUploader{err: errors.New("a failed")}
	b := &fakeUploader{err: errors.New("b failed")}

	_, err := NewChain(nil, a, b).Upload(context.Background(), "x", "text/plain", strings.NewReader("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, a.err)
	assert.ErrorIs(t, err, b.err)
}

func TestChainDoesNotRetryUnrewindableReader(t *testing.T) {
	a := &fakeUploader{err: errors.New("a failed")}
	b := &fakeUploader{link: "unused"}

	_, err := NewChain(nil, a, b).Upload(context.Background(), "x", "text/plain", io.NopCloser(strings.NewReader("x")))
	require.Error(t, err)
	assert.Empty(t, b.got)
}

func TestEmptyChain(t *testing.T) {
	_, err := NewChain(nil).Upload(context.Background(), "x", "", strings.NewReader(""))
	assert.Error(t, err)
}

func TestDownloadURLEscapesObject(t *testing.T) {
	got := DownloadURL("folio.appspot.com", "covers/1_a b.png", "tok")
	assert.Equal(t, "https://firebasestorage.googleapis.com/v0/b/folio.appspot.com/o/covers%2F1_a%20b.png?alt=media&token=tok", got)
}
