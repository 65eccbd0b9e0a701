package server

type Config struct {
	SocketConfig struct{
		PingPeriodTime int `default:"8000"`
		PongWaitTime int `default:"10000"`
		WriteWaitTime int `default:"5000"`
		ReceivedMessageDecrementCount int `default:"20"`
		OutgoingQueueSize int `default:"64"`
	}
	DBConfig struct{
		ConnString string `default:"mongo"`
		Name string `default:"tennis"`
	}
	RedisConfig struct{
		ConnString string `default:""`
		PoolSize int `default:"10"`
	}
	RabbitMQ struct{
		ConnectionString string `default:""`
	}
	AuthConfig struct{
		JWTSecret string `default:"asdasdqweqasdqwwe"`
		TokenExpireTime int `default:"86400"`
	}
	SupervisorConfig struct{
		SweepInterval int `default:"60000"`
		StaleScoreTimeout int `default:"7200000"`
		MinLiveTimeBeforeStaleCheck int `default:"14400000"`
		ReminderLeadTime int `default:"900000"`
	}
	NotificationConfig struct{
		AppKey string
		AppID string
	}
	Port int `default:"7350"`
	MaxRequestBodySize int64 `default:"4096"`
	DevelopmentEnabled bool `default:"false"`
}
