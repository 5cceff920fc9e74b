/*
Package secrets resolves key material for the archive engine.

Encryption master keys and age identities never live in the configuration
file. The configuration names a secret ("archive-encryption-key") and a
Manager looks it up in a chain of providers:

  - FileProvider reads one file per secret from a directory. Files must be
    mode 0600 or 0400. With watching enabled, cached values are dropped when
    a file changes so rotated keys are picked up without a restart.
  - EnvProvider reads KEEPER_SECRET_<NAME> environment variables, with the
    name upper-cased and hyphens turned into underscores.

Providers are tried in order and the first value found wins. Values are held
in a TTL cache; Refresh clears it.

	fileProvider, err := secrets.NewFileProvider("/etc/keeper/secrets", true)
	if err != nil {
		return err
	}
	defer fileProvider.Close()

	manager := secrets.NewManager(
		[]secrets.SecretProvider{fileProvider, secrets.NewEnvProvider("KEEPER_SECRET_")},
		secrets.DefaultCacheConfig(),
	)

	raw, err := manager.GetSecret(ctx, "archive-encryption-key")
	if err != nil {
		return err
	}
	key, err := secrets.DecodeKey(raw)

Secret names and values are never logged. Log lines carry a redacted form of
the name only.
*/
package secrets
