package models

// Dashboard is the home screen snapshot returned by GET /dashboard
type Dashboard struct {
	Dashboard DashboardBody     `json:"dashboard"`
	Settings  DashboardSettings `json:"settings"`
	Widgets   []Widget          `json:"widgets"`
}

// DashboardBody groups the summary cards
type DashboardBody struct {
	UserID         int64             `json:"user_id"`
	SleepSummary   SleepSummary      `json:"sleep_summary"`
	DeviceStatus   DashboardDevice   `json:"device_status"`
	RecentAlerts   []Alert           `json:"recent_alerts"`
	QuickStats     QuickStats        `json:"quick_stats"`
	WeeklyProgress WeeklyProgress    `json:"weekly_progress"`
	Recommendation []Recommendation  `json:"recommendations"`
	UpcomingAlarms []Alarm           `json:"upcoming_alarms"`
	Environment    EnvironmentReport `json:"environment_data"`
	LastUpdated    string            `json:"last_updated"`
}

type SleepSummary struct {
	LastNightScore     int     `json:"last_night_score"`
	LastNightDuration  int     `json:"last_night_duration"`
	LastNightQuality   string  `json:"last_night_quality"`
	WeekAverage        float64 `json:"week_average"`
	MonthAverage       float64 `json:"month_average"`
	TotalSleepThisWeek int     `json:"total_sleep_this_week"`
	SleepGoalProgress  float64 `json:"sleep_goal_progress"`
	LastSleepSession   string  `json:"last_sleep_session"`
	ConsistencyScore   float64 `json:"consistency_score"`
}

type DashboardDevice struct {
	DeviceID         string `json:"device_id"`
	DeviceName       string `json:"device_name"`
	Status           string `json:"status"`
	BatteryLevel     int    `json:"battery_level"`
	CurrentPumpAngle int    `json:"current_pump_angle"`
	LastHeartbeat    string `json:"last_heartbeat"`
	FirmwareVersion  string `json:"firmware_version"`
	WiFiStrength     int    `json:"wifi_strength"`
	IsOnline         bool   `json:"is_online"`
}

type Alert struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Priority  string `json:"priority"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

type QuickStats struct {
	TotalNightsTracked   int     `json:"total_nights_tracked"`
	AverageSleepDuration float64 `json:"average_sleep_duration"`
	BestSleepScore       int     `json:"best_sleep_score"`
	TotalSnoreEvents     int     `json:"total_snore_events"`
	SleepEfficiency      float64 `json:"sleep_efficiency"`
	ConsistencyStreak    int     `json:"consistency_streak"`
}

type WeeklyProgress struct {
	CurrentWeek         []DayProgress `json:"current_week"`
	SleepGoal           int           `json:"sleep_goal"`
	GoalAchievementRate float64       `json:"goal_achievement_rate"`
	WeeklyTrend         string        `json:"weekly_trend"`
	ImprovementFromLast float64       `json:"improvement_from_last"`
}

type DayProgress struct {
	Date          string `json:"date"`
	Day           string `json:"day"`
	SleepDuration int    `json:"sleep_duration"`
	SleepScore    int    `json:"sleep_score"`
	HasData       bool   `json:"has_data"`
	Quality       string `json:"quality"`
}

type Recommendation struct {
	ID          int64  `json:"id"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

type Alarm struct {
	ID          int64  `json:"id"`
	AlarmTime   string `json:"alarm_time"`
	NextTrigger string `json:"next_trigger"`
	Label       string `json:"label"`
	IsEnabled   bool   `json:"is_enabled"`
	SmartWake   bool   `json:"smart_wake"`
}

type EnvironmentReport struct {
	CurrentTemperature float64  `json:"current_temperature"`
	CurrentHumidity    float64  `json:"current_humidity"`
	AirQuality         string   `json:"air_quality"`
	NoiseLevel         float64  `json:"noise_level"`
	LightLevel         string   `json:"light_level"`
	OptimalForSleep    bool     `json:"optimal_for_sleep"`
	Recommendations    []string `json:"recommendations"`
}

type DashboardSettings struct {
	SleepGoal           int    `json:"sleep_goal"`
	WeekStartDay        int    `json:"week_start_day"`
	DisplayUnits        string `json:"display_units"`
	ShowRecommendations bool   `json:"show_recommendations"`
	ShowAlerts          bool   `json:"show_alerts"`
	DashboardLayout     string `json:"dashboard_layout"`
	Theme               string `json:"theme"`
	Language            string `json:"language"`
}

type Widget struct {
	WidgetID    string         `json:"widget_id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Position    WidgetPosition `json:"position"`
	IsEnabled   bool           `json:"is_enabled"`
	LastUpdated string         `json:"last_updated"`
}

type WidgetPosition struct {
	Row    int `json:"row"`
	Column int `json:"column"`
	Width  int `json:"width"`
	Height int `json:"height"`
}
