package rebuild

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/condaforge/rbcore/pkg/external"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_MatchingRebuildReportsMatch(t *testing.T) {
	r := &Rebuilder{
		Extract: func(ctx context.Context, path string) (external.PackageMeta, error) {
			return external.PackageMeta{Name: "mylib", Version: "1.0"}, nil
		},
		Rebuild: func(ctx context.Context, meta external.PackageMeta) (io.Reader, error) {
			return strings.NewReader("identical bytes"), nil
		},
	}
	res, err := r.Verify(context.Background(), "mylib.conda", strings.NewReader("identical bytes"))
	require.NoError(t, err)
	assert.True(t, res.Match)
	assert.Equal(t, res.OriginalSHA256, res.RebuiltSHA256)
}

func TestVerify_DivergingRebuildReportsMismatch(t *testing.T) {
	r := &Rebuilder{
		Extract: func(ctx context.Context, path string) (external.PackageMeta, error) {
			return external.PackageMeta{Name: "mylib", Version: "1.0"}, nil
		},
		Rebuild: func(ctx context.Context, meta external.PackageMeta) (io.Reader, error) {
			return strings.NewReader("different bytes"), nil
		},
	}
	res, err := r.Verify(context.Background(), "mylib.conda", strings.NewReader("identical bytes"))
	require.NoError(t, err)
	assert.False(t, res.Match)
	assert.NotEqual(t, res.OriginalSHA256, res.RebuiltSHA256)
}
