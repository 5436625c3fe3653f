package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/photokeeper/internal/flagx"
	"github.com/dmitrijs2005/photokeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration, so both "10m" and integer nanoseconds are accepted. Only
// keys present in the file override the current values.
type JsonConfig struct {
	HTTPAddr               string          `json:"http_addr"`
	GRPCAddr               string          `json:"grpc_addr"`
	DatabaseDSN            *string         `json:"database_dsn"`
	LogLevel               string          `json:"log_level"`
	JWTSecret              string          `json:"jwt_secret"`
	SessionTTL             *timex.Duration `json:"session_ttl"`
	LinkTokenTTL           *timex.Duration `json:"link_token_ttl"`
	BcryptCost             int             `json:"bcrypt_cost"`
	GoogleClientID         string          `json:"google_client_id"`
	GoogleClientSecret     string          `json:"google_client_secret"`
	GoogleRedirectURI      string          `json:"google_redirect_uri"`
	FederatedAutoLink      *bool           `json:"federated_auto_link"`
	S3AccessKey            string          `json:"s3_access_key"`
	S3SecretKey            string          `json:"s3_secret_key"`
	S3Bucket               string          `json:"s3_bucket"`
	S3Region               string          `json:"s3_region"`
	S3Endpoint             string          `json:"s3_endpoint"`
	S3ForcePathStyle       *bool           `json:"s3_force_path_style"`
	ProvisionAttempts      uint64          `json:"provision_attempts"`
	ProvisionSweepInterval *timex.Duration `json:"provision_sweep_interval"`
	ProvisionSweepBatch    int             `json:"provision_sweep_batch"`
	FrontendDir            string          `json:"frontend_dir"`
	CORSOrigins            []string        `json:"cors_origins"`
}

// parseJson loads the file named by -c / -config, if any, into config.
// An unreadable file or invalid JSON panics: the process cannot start with
// a configuration the operator did not intend.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFilePath()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.JWTSecret, c.JWTSecret)
	if c.SessionTTL != nil {
		config.SessionTTL = c.SessionTTL.Duration
	}
	if c.LinkTokenTTL != nil {
		config.LinkTokenTTL = c.LinkTokenTTL.Duration
	}
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	setString(&config.GoogleClientID, c.GoogleClientID)
	setString(&config.GoogleClientSecret, c.GoogleClientSecret)
	setString(&config.GoogleRedirectURI, c.GoogleRedirectURI)
	if c.FederatedAutoLink != nil {
		config.FederatedAutoLink = *c.FederatedAutoLink
	}
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3Endpoint, c.S3Endpoint)
	if c.S3ForcePathStyle != nil {
		config.S3ForcePathStyle = *c.S3ForcePathStyle
	}
	if c.ProvisionAttempts != 0 {
		config.ProvisionAttempts = c.ProvisionAttempts
	}
	if c.ProvisionSweepInterval != nil {
		config.ProvisionSweepInterval = c.ProvisionSweepInterval.Duration
	}
	if c.ProvisionSweepBatch != 0 {
		config.ProvisionSweepBatch = c.ProvisionSweepBatch
	}
	setString(&config.FrontendDir, c.FrontendDir)
	if c.CORSOrigins != nil {
		config.CORSOrigins = c.CORSOrigins
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
