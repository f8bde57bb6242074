package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/require"
)

func TestTaxonomyEnvelopes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		code     string
		status   int
		category goerrors.Category
	}{
		{"authorization", Authorization("nope"), CodeAuthorization, http.StatusForbidden, goerrors.CategoryAuthz},
		{"validation", Validation("bad", nil), CodeValidation, http.StatusBadRequest, goerrors.CategoryValidation},
		{"persist", Persist(errors.New("disk full"), nil), CodePersist, http.StatusInternalServerError, goerrors.CategoryExternal},
		{"delivery", Delivery(errors.New("403"), "send failed", map[string]any{"guild": "1"}), CodeDelivery, http.StatusBadGateway, goerrors.CategoryExternal},
		{"corrupt", CorruptState(errors.New("eof"), "bad doc"), CodeCorruptState, http.StatusInternalServerError, goerrors.CategoryInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rich *goerrors.Error
			require.True(t, goerrors.As(tt.err, &rich))
			require.Equal(t, tt.code, rich.TextCode)
			require.Equal(t, tt.category, rich.Category)
			require.Equal(t, tt.status, Status(tt.err))
			require.True(t, Is(tt.err, tt.code))
		})
	}
}

func TestIsSeesThroughFmtWrapping(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("set: %w", Persist(errors.New("disk full"), nil))
	require.True(t, Is(err, CodePersist))
	require.False(t, Is(err, CodeValidation))
	require.False(t, Is(errors.New("plain"), CodePersist))
	require.False(t, Is(nil, CodePersist))
}

func TestStatusAndMessageDefaults(t *testing.T) {
	t.Parallel()
	require.Equal(t, http.StatusInternalServerError, Status(errors.New("plain")))
	require.Equal(t, "plain", Message(errors.New("plain")))
	require.Equal(t, "bad", Message(Validation("bad", nil)))
	require.Equal(t, "", Message(nil))
}
