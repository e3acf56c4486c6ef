package recaptcha

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smallbiznis/qpayrelay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func siteverify(t *testing.T, score float64, success bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "secret", r.PostForm.Get("secret"))
		assert.Equal(t, "token", r.PostForm.Get("response"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"success":%t,"score":%v,"action":"contact","error-codes":[]}`, success, score)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerifyScoreThreshold(t *testing.T) {
	cases := []struct {
		name    string
		score   float64
		success bool
		pass    bool
	}{
		{"above", 0.9, true, true},
		{"exact", 0.5, true, true},
		{"below", 0.4, true, false},
		{"unsuccessful", 0.9, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := siteverify(t, tc.score, tc.success)
			c := New(config.RecaptchaConfig{SecretKey: "secret", VerifyURL: srv.URL}, srv.Client(), nil)

			result, err := c.Verify(context.Background(), "token", "")
			if tc.pass {
				require.NoError(t, err)
				assert.Equal(t, tc.score, result.Score)
				return
			}
			var rejected *RejectedError
			require.ErrorAs(t, err, &rejected)
			assert.Equal(t, tc.score, rejected.Score)
		})
	}
}

func TestVerifyRequiresToken(t *testing.T) {
	c := New(config.RecaptchaConfig{}, nil, nil)
	_, err := c.Verify(context.Background(), " ", "")
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestVerifyUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(config.RecaptchaConfig{SecretKey: "secret", VerifyURL: srv.URL}, srv.Client(), nil)
	_, err := c.Verify(context.Background(), "token", "")
	require.Error(t, err)

	var rejected *RejectedError
	assert.NotErrorAs(t, err, &rejected)
}
