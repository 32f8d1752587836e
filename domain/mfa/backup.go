package mfa

import (
	"encoding/json"

	"github.com/entativa/id/errs"
	"github.com/entativa/id/pkg/idgen"
)

// BackupCodeCount is how many one-time codes a fresh enrollment issues, per
// SPEC_FULL.md §4.6 ("10 x 10-char one-time codes").
const BackupCodeCount = 10

// backupCodeEntry is one hashed code plus its consumption state. The set is
// JSON-encoded into MFAMethod.SecretEnc, since the durable schema has no
// separate backup-codes table.
type backupCodeEntry struct {
	Hash string `json:"hash"`
	Used bool   `json:"used"`
}

// generateBackupCodes returns BackupCodeCount fresh plaintext codes and
// their encoded (hashed, unused) form for storage.
func generateBackupCodes() (plaintext []string, encoded string, err error) {
	entries := make([]backupCodeEntry, BackupCodeCount)
	plaintext = make([]string, BackupCodeCount)
	for i := range entries {
		code, err := idgen.BackupCode()
		if err != nil {
			return nil, "", err
		}
		plaintext[i] = code
		entries[i] = backupCodeEntry{Hash: idgen.Hash(code)}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, "", errs.Wrap(errs.Fatal, "encode backup codes", err)
	}
	return plaintext, string(raw), nil
}

// consumeBackupCode marks one matching unused code used, returning the
// updated encoding and whether every code is now exhausted.
func consumeBackupCode(encoded, code string) (newEncoded string, ok bool, exhausted bool, err error) {
	var entries []backupCodeEntry
	if err := json.Unmarshal([]byte(encoded), &entries); err != nil {
		return "", false, false, errs.Wrap(errs.Fatal, "decode backup codes", err)
	}

	hash := idgen.Hash(code)
	found := false
	for i := range entries {
		if entries[i].Hash == hash {
			if entries[i].Used {
				return encoded, false, false, nil
			}
			entries[i].Used = true
			found = true
			break
		}
	}
	if !found {
		return encoded, false, false, nil
	}

	exhausted = true
	for _, e := range entries {
		if !e.Used {
			exhausted = false
			break
		}
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return "", false, false, errs.Wrap(errs.Fatal, "encode backup codes", err)
	}
	return string(raw), true, exhausted, nil
}
