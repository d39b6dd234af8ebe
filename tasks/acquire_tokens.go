package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"markd/internal/store"
	"markd/types"
)

// AcquireTokens obtains a bearer token for every configured certificate and
// merges the result into the token store. A certificate with persisted
// outlet pairs gets one token per pair, each from a fresh challenge
// (challenges are single-use), stored under "{name} - {outlet}".
//
// A signing or exchange failure for one certificate never aborts the rest;
// the run fails only when zero tokens were acquired, in which case the
// store is left untouched.
func AcquireTokens(ctx context.Context, client *TrueAPIClient, signer Signer, st *store.Store) (map[string]string, error) {
	logger := zap.L().With(zap.String("task", "acquire_tokens"))

	certs, err := st.LoadCertificates()
	if err != nil {
		return nil, fmt.Errorf("load certificates: %w", err)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates configured")
	}
	logger.Info("acquire_tokens started", zap.Int("certificates", len(certs)))

	acquired := map[string]string{}
	for _, cert := range certs {
		if cert.Thumbprint == "" {
			logger.Warn("skipping certificate without thumbprint", zap.String("certificate", cert.Name))
			continue
		}
		if err := acquireForCertificate(ctx, client, signer, st, cert, acquired); err != nil {
			logger.Error("certificate skipped",
				zap.String("certificate", cert.Name),
				zap.Error(err))
		}
	}

	if len(acquired) == 0 {
		return nil, fmt.Errorf("no tokens acquired for any certificate")
	}
	if err := st.MergeTokens(acquired, time.Now()); err != nil {
		return nil, fmt.Errorf("persist tokens: %w", err)
	}
	logger.Info("acquire_tokens complete", zap.Int("tokens", len(acquired)))
	return acquired, nil
}

func acquireForCertificate(ctx context.Context, client *TrueAPIClient, signer Signer, st *store.Store, cert types.Certificate, acquired map[string]string) error {
	logger := zap.L().With(zap.String("task", "acquire_tokens"), zap.String("certificate", cert.Name))

	certKey := cert.Name
	if certKey == "" {
		certKey = cert.Thumbprint
	}
	pairs, err := st.LoadOutletPairs(certKey)
	if err != nil {
		return fmt.Errorf("load outlet pairs: %w", err)
	}
	mchd := st.UseMCHD(cert.Name)

	if len(pairs) == 0 {
		token, err := exchangeOnce(ctx, client, signer, cert, "", mchd)
		if errors.Is(err, ErrTaxIDRequired) {
			// Headless runs cannot prompt; the pair has to be provisioned in
			// cert_inns.json before the next cycle.
			return fmt.Errorf("certificate needs an outlet/tax-identifier pair on file: %w", err)
		}
		if err != nil {
			return err
		}
		acquired[certKey] = token
		logger.Info("token acquired")
		return nil
	}

	var lastErr error
	for _, pair := range pairs {
		token, err := exchangeOnce(ctx, client, signer, cert, pair.INN, mchd)
		if err != nil {
			logger.Error("token exchange failed for outlet",
				zap.String("outlet", pair.Outlet),
				zap.Error(err))
			lastErr = err
			continue
		}
		acquired[fmt.Sprintf("%s - %s", certKey, pair.Outlet)] = token
		logger.Info("token acquired", zap.String("outlet", pair.Outlet),
			zap.Bool("with_inn", strings.TrimSpace(pair.INN) != ""))
	}
	if lastErr != nil && len(pairs) == 1 {
		return lastErr
	}
	return nil
}

// exchangeOnce draws a fresh challenge, signs it, and exchanges it for a
// token, optionally disambiguated by tax identifier.
func exchangeOnce(ctx context.Context, client *TrueAPIClient, signer Signer, cert types.Certificate, inn string, mchd bool) (string, error) {
	challenge, err := client.GetAuthChallenge(ctx)
	if err != nil {
		return "", fmt.Errorf("auth challenge: %w", err)
	}
	signed, err := signer.Sign(ctx, challenge.Data, cert.Thumbprint)
	if err != nil {
		return "", fmt.Errorf("sign challenge: %w", err)
	}
	token, err := client.SignIn(ctx, SignInParams{
		UUID:       challenge.UUID,
		SignedData: signed,
		INN:        strings.TrimSpace(inn),
		MCHD:       mchd,
	})
	if err != nil {
		return "", err
	}
	return token, nil
}
