package llm

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
)

// authDoer sits under the go-openai client and writes the Authorization
// header in the negotiated format plus the attribution headers.
type authDoer struct {
	inner   *http.Client
	config  *Config
	format  atomic.Value // AuthFormat
	headers map[string]string
}

func newAuthDoer(inner *http.Client, config *Config) *authDoer {
	d := &authDoer{
		inner:   inner,
		config:  config,
		headers: config.GetHeaders(),
	}
	d.format.Store(AuthBearer)
	return d
}

func (d *authDoer) Format() AuthFormat {
	return d.format.Load().(AuthFormat)
}

func (d *authDoer) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", d.config.Authorization(d.Format()))
	for k, v := range d.headers {
		req.Header.Set(k, v)
	}
	return d.inner.Do(req)
}

// negotiate settles the credential format once. The bearer form is tried
// first; a 401/403 followed by a successful raw attempt switches to raw.
// Anything inconclusive keeps bearer.
func (d *authDoer) negotiate(ctx context.Context, baseURL string) AuthFormat {
	try := func(format AuthFormat) (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/models", nil)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Authorization", d.config.Authorization(format))
		for k, v := range d.headers {
			req.Header.Set(k, v)
		}
		resp, err := d.inner.Do(req)
		if err != nil {
			return 0, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return resp.StatusCode, nil
	}

	chosen := AuthBearer
	status, err := try(AuthBearer)
	if err == nil && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
		if rawStatus, rawErr := try(AuthRaw); rawErr == nil && rawStatus >= 200 && rawStatus < 300 {
			chosen = AuthRaw
		}
	}
	d.format.Store(chosen)
	return chosen
}
