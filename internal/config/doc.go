// Package config handles YAML configuration loading with environment variable
// substitution and overrides.
//
// Configuration files support ${VAR} syntax for environment variable
// interpolation. After the file is read, CHAT_* variables override
// individual fields (CHAT_REALTIME_URL, CHAT_USER_TOKEN, CHAT_DB_PASSWORD,
// ...). The file is optional; a deployment may configure everything through
// the environment.
package config
