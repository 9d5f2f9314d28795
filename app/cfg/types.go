package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Validation configuration
	SchemaPath string
	PolicyPath string

	// Application configuration
	Port              string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Signing and token configuration
	SigningKeyPath string
	JWTIssuer      string
	JWTAudience    string

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
