/*
Package security groups the access, key and secret handling of the archive
engine.

  - access checks caller identities against role permissions before any
    archive is read, created, deleted or placed on hold.
  - keys generates and loads the ed25519 keypairs that sign archives.
  - secrets resolves encryption key material from files or the environment.

Signing keys are generated with "keeper keys generate" and referenced from
configuration by key id:

	packaging:
	  signing:
	    enabled: true
	    key_id: prod-2026
	    keyring_dir: /etc/keeper/keys

Encryption keys are resolved by name through the secrets manager:

	KEEPER_SECRET_ARCHIVE_ENCRYPTION_KEY=<64 hex chars>
*/
package security
