// Package auth hashes and verifies the local API password.
//
// Hashes use argon2id in PHC string format, so the configured hash can be
// produced once (graylogic-device hash-password) and pasted into the
// config file or GRAYLOGIC_DEVICE_API_PASSWORD_HASH.
package auth
