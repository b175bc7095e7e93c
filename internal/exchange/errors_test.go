package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"ambiguous sentinel", fmt.Errorf("%w: timed out", ErrAmbiguous), KindAmbiguous},
		{"throttle 429", &APIError{Status: 429}, KindRateLimited},
		{"throttle 418", &APIError{Status: 418}, KindRateLimited},
		{"client error", &APIError{Status: 400, Code: -2010}, KindRejected},
		{"server error", &APIError{Status: 502}, KindNetwork},
		{"wrapped api error", fmt.Errorf("placing order: %w", &APIError{Status: 400}), KindRejected},
		{"plain error", errors.New("connection reset"), KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsTransportError(t *testing.T) {
	assert.True(t, isTransportError(context.DeadlineExceeded))
	assert.True(t, isTransportError(&url.Error{Op: "Post", URL: "x", Err: errors.New("refused")}))
	assert.False(t, isTransportError(&APIError{Status: 400}))
	assert.False(t, isTransportError(nil))
}
