package config

// EnvPrefix is empty because every field tag carries the full variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvDBDSN  = "LEGALFLOW_DB_DSN"
	EnvDBHost = "LEGALFLOW_DB_HOST"
	EnvDBUser = "LEGALFLOW_DB_USER"
	EnvDBName = "LEGALFLOW_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
