// Package password verifies staff passwords and whistleblower receipts
// against stored salted hashes.
//
// # Formats
//
// Two stored formats are accepted:
//
//	<hex scrypt key>                                   (salt in a separate column)
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Receipts are always scrypt-hashed under the tenant receipt salt, which
// makes the hash usable as a lookup key while keeping precomputed tables
// tenant-specific.
//
// Every comparison uses crypto/subtle. A stored value that cannot be decoded
// yields [ErrMalformedHash] so callers can treat it as a configuration error.
//
// # What this package must NOT do
//
//   - Store or retrieve hashes; callers fetch records and pass them in.
//   - Import any other tipgate package.
//   - Log secrets or hash material.
package password
