package pool

import (
	"fmt"
	"strings"
	"time"

	"github.com/crutech/nydus/pkg/account"
	"github.com/crutech/nydus/pkg/token"
	"github.com/crutech/nydus/pkg/validation"
)

// The pool file is UTF-8 text: a header line naming the fields, then one
// comma-separated line per record. There is no escaping; the validators
// keep commas, whitespace, and CR/LF out of every field.

const fieldDelimiter = ","

// fieldNames is the file schema, in order. The first three are the tenancy
// and are empty for free records; the rest are the bundle.
var fieldNames = []string{
	"client_ip",
	"client_username",
	"alloc_time",
	"ms_username",
	"msal_token",
	"msal_expiry",
	"xboxlive_token",
	"xboxlive_expiry",
	"xboxlive_hash",
	"xsts_token",
	"xsts_expiry",
	"xsts_hash",
	"mc_token",
	"mc_expiry",
	"mc_username",
	"mc_uuid",
}

// headerLine returns the first line of the pool file, without a newline.
func headerLine() string {
	return strings.Join(fieldNames, fieldDelimiter)
}

// formatInstant renders a pool-file timestamp. The format carries no zone,
// so both directions of the codec use host local time; pipeline expiries
// arrive as UTC instants and must be converted, not reinterpreted.
func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(time.Local).Format(validation.TimeFormat)
}

// marshalRecord renders one record as a pool-file line, without a newline.
func marshalRecord(r *Record) string {
	b := r.bundle
	fields := []string{
		r.clientAddr,
		r.clientUser,
		formatInstant(r.allocatedAt),
		b.Username(),
		b.MSAL().Token(),
		formatInstant(b.MSAL().ExpiresAt()),
		b.XboxLive().Token(),
		formatInstant(b.XboxLive().ExpiresAt()),
		b.XboxLive().Hash(),
		b.XSTS().Token(),
		formatInstant(b.XSTS().ExpiresAt()),
		b.XSTS().Hash(),
		b.Minecraft().Token(),
		formatInstant(b.Minecraft().ExpiresAt()),
		b.Profile().Name,
		b.Profile().UUID,
	}
	return strings.Join(fields, fieldDelimiter)
}

// parseInstant reads a pool-file timestamp, in host local time to mirror
// formatInstant.
func parseInstant(field, value string) (time.Time, error) {
	t, err := time.ParseInLocation(validation.TimeFormat, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: field %s: %v", ErrMalformedRecord, field, err)
	}
	return t, nil
}

func parseToken(tokenField, expiryField, tok, expiry, hash string) (token.AccessToken, error) {
	expiresAt, err := parseInstant(expiryField, expiry)
	if err != nil {
		return token.AccessToken{}, err
	}
	at, err := token.NewWithHash(tok, expiresAt, hash)
	if err != nil {
		return token.AccessToken{}, fmt.Errorf("%w: field %s: %v", ErrMalformedRecord, tokenField, err)
	}
	return at, nil
}

// unmarshalRecord parses one pool-file line. A line with the wrong field
// count is malformed (strict schema). A partially-populated tenancy is
// normalised to free; the caller is told through the normalised return so
// it can log the diagnostic.
func unmarshalRecord(line string) (rec *Record, normalised bool, err error) {
	fields := strings.Split(line, fieldDelimiter)
	if len(fields) != len(fieldNames) {
		return nil, false, fmt.Errorf("%w: expected %d fields, got %d",
			ErrMalformedRecord, len(fieldNames), len(fields))
	}

	clientAddr, clientUser, allocTime := fields[0], fields[1], fields[2]

	msal, err := parseToken("msal_token", "msal_expiry", fields[4], fields[5], "")
	if err != nil {
		return nil, false, err
	}
	xboxLive, err := parseToken("xboxlive_token", "xboxlive_expiry", fields[6], fields[7], fields[8])
	if err != nil {
		return nil, false, err
	}
	xsts, err := parseToken("xsts_token", "xsts_expiry", fields[9], fields[10], fields[11])
	if err != nil {
		return nil, false, err
	}
	minecraft, err := parseToken("mc_token", "mc_expiry", fields[12], fields[13], "")
	if err != nil {
		return nil, false, err
	}

	profile, err := account.NewProfile(fields[14], fields[15], minecraft.Token())
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	bundle, err := account.NewBundle(fields[3], msal, xboxLive, xsts, minecraft, profile)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	record := &Record{bundle: bundle}

	switch {
	case clientAddr == "" && clientUser == "" && allocTime == "":
		// Free record.
	case clientAddr != "" && clientUser != "" && allocTime != "":
		if err := validation.ValidateIPAddr(clientAddr); err != nil {
			return nil, false, fmt.Errorf("%w: field client_ip: %v", ErrMalformedRecord, err)
		}
		if err := validation.ValidateSystemUsername(clientUser); err != nil {
			return nil, false, fmt.Errorf("%w: field client_username: %v", ErrMalformedRecord, err)
		}
		allocatedAt, err := parseInstant("alloc_time", allocTime)
		if err != nil {
			return nil, false, err
		}
		record.clientAddr = clientAddr
		record.clientUser = clientUser
		record.allocatedAt = allocatedAt
	default:
		// A partial tenancy means the allocation process broke somewhere.
		// Count the record as free rather than losing the account.
		return record, true, nil
	}

	return record, false, nil
}
