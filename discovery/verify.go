package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/healthfees-org/cloudflare-backstage.io/sources/cloudflare"
	log "github.com/sirupsen/logrus"
)

// TokenVerifier checks the API token before the first run
type TokenVerifier interface {
	VerifyToken(ctx context.Context) (*cloudflare.TokenStatus, error)
}

// VerifyToken checks the token, retrying with exponential backoff while the
// API is unreachable. Rejections such as an inactive or unknown token are
// returned straight away since retrying will not change them.
func VerifyToken(ctx context.Context, v TokenVerifier, maxRetries int) error {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 30 * time.Second
	tick := backoff.NewTicker(b)
	defer tick.Stop()

	var err error
	try := 0

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		try++
		if try > maxRetries+1 {
			return fmt.Errorf("maximum retries (%d) exceeded verifying cloudflare api token: %w", maxRetries, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-tick.C:
			if !ok {
				return err
			}

			var status *cloudflare.TokenStatus
			status, err = v.VerifyToken(ctx)
			if err == nil {
				log.WithContext(ctx).WithFields(log.Fields{
					"cf.token.id":        status.ID,
					"cf.token.expiresOn": status.ExpiresOn,
				}).Info("Cloudflare API token verified")
				return nil
			}

			if !cloudflare.IsRetryable(err) {
				return err
			}

			log.WithContext(ctx).WithError(err).WithField("try", try).Warn("Could not verify Cloudflare API token, retrying")
		}
	}
}
