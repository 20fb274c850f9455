package appErrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyKind(t *testing.T) {
	require.Equal(t, KindAuth, ClassifyKind(Ef(KindAuth, "smtp", "535 bad credentials")))
	require.Equal(t, KindRateLimit, ClassifyKind(E(KindRateLimit, "smtp", errors.New("429"))))

	// Classification survives wrapping.
	wrapped := fmt.Errorf("send: %w", Ef(KindPermanent, "smtp", "hard bounce"))
	require.Equal(t, KindPermanent, ClassifyKind(wrapped))

	// Plain errors stay on the retry path.
	require.Equal(t, KindTransient, ClassifyKind(errors.New("connection reset")))
	require.Equal(t, KindTransient, ClassifyKind(nil))
}

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(Ef(KindTransient, "smtp", "timeout")))
	require.True(t, Retryable(Ef(KindRateLimit, "smtp", "429")))
	require.True(t, Retryable(Ef(KindContent, "generate", "refused")))
	require.True(t, Retryable(errors.New("unclassified")))

	require.False(t, Retryable(Ef(KindAuth, "smtp", "535")))
	require.False(t, Retryable(Ef(KindPermanent, "smtp", "bounce")))
	require.False(t, Retryable(Ef(KindData, "resolve", "lead missing")))
}

func TestDispatchErrorMessage(t *testing.T) {
	err := E(KindAuth, "linkedin", errors.New("token expired"))
	require.Equal(t, "linkedin: auth: token expired", err.Error())

	var de *DispatchError
	require.True(t, errors.As(err, &de))
	require.EqualError(t, de.Unwrap(), "token expired")
}
