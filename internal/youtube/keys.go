package youtube

import (
	"context"
	"log"

	"yt-radar/internal/apperrors"
	"yt-radar/internal/db"
)

// serverCredential picks the least-used active server-pool key. When userID
// is non-nil the credential is charged on that user's behalf.
func serverCredential(userID *int64, excluding ...int64) (Credential, error) {
	key, err := db.GetServerAPIKey(excluding...)
	if err != nil {
		return Credential{}, err
	}
	return Credential{ID: key.ID, Key: key.APIKey, OnBehalfOfUserID: userID}, nil
}

// credentialForUser resolves the credential for a user-initiated call: the
// user's own registered key when present, otherwise a server-pool key charged
// on the user's behalf so the per-user daily cap applies.
func credentialForUser(userID int64) (Credential, error) {
	key, err := db.GetUserAPIKey(userID)
	if err == nil {
		return Credential{ID: key.ID, Key: key.APIKey}, nil
	}
	if !apperrors.HasCode(err, apperrors.CodeCredentialNotFound) {
		return Credential{}, err
	}
	return serverCredential(&userID)
}

// runWithReselect runs fn with a server credential. Selection and charging
// are not atomic: a concurrent caller may exhaust the selected key between
// selection and the ledger charge. One reselection, excluding the rejected
// key, is the bounded retry; a second rejection propagates.
func runWithReselect(ctx context.Context, userID *int64, fn func(Credential) error) error {
	var excluded []int64
	for attempt := 0; ; attempt++ {
		cred, err := serverCredential(userID, excluded...)
		if err != nil {
			return err
		}
		err = fn(cred)
		if err == nil || attempt > 0 || !apperrors.HasCode(err, apperrors.CodeQuotaExceeded) {
			return err
		}
		log.Printf("API key %d exhausted mid-operation, reselecting once", cred.ID)
		excluded = append(excluded, cred.ID)
	}
}
