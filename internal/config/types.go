package config

// RemoteConfig addresses the event archive.
type RemoteConfig struct {
	BaseURL   string `yaml:"baseURL" validate:"required,url"`
	TimeoutMS int    `yaml:"timeoutMS" validate:"gte=0"`
}

// CacheConfig locates the local cache directory.
type CacheConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

// ImageConfig controls how the event image is presented.
type ImageConfig struct {
	FlipPortrait bool `yaml:"flipPortrait"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter" validate:"omitempty,oneof=stdout"`
	SampleRatio float64 `yaml:"sampleRatio" validate:"gte=0,lte=1"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Remote  RemoteConfig  `yaml:"remote" validate:"required"`
	Cache   CacheConfig   `yaml:"cache" validate:"required"`
	Image   ImageConfig   `yaml:"image"`
	Tracing TracingConfig `yaml:"tracing"`
}
