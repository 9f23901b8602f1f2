package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	UsingDBPath        string
	ServerListening    string
	ShuttingDown       string
	ShutdownComplete   string
	ConfigLoadFailed   string
	DBInitFailed       string
	DBMigrationsFailed string
	APIServerError     string
	EngineServiceInit  string

	// Market data
	BinanceFeedStarted string
	MockFeedStarted    string
	CandleCacheEnabled string
	CandleCacheFailed  string

	// Strategy
	PresetsLoaded     string
	PresetsLoadFailed string
	AuthEnabled       string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	// System
	Starting:           "Starting backtest service...",
	ConfigLoaded:       "Config loaded (Port: %s)",
	UsingDBPath:        "Using DB path: %s",
	ServerListening:    "Server listening on :%s",
	ShuttingDown:       "Shutting down gracefully...",
	ShutdownComplete:   "Shutdown complete",
	ConfigLoadFailed:   "Failed to load config: %v",
	DBInitFailed:       "Failed to init database: %v",
	DBMigrationsFailed: "Failed to apply migrations: %v",
	APIServerError:     "API server error: %v",
	EngineServiceInit:  "Engine service initialized",

	// Market data
	BinanceFeedStarted: "Using Binance market data (testnet: %t)",
	MockFeedStarted:    "Using mock market data",
	CandleCacheEnabled: "Candle cache enabled at %s (ttl %s)",
	CandleCacheFailed:  "Candle cache unavailable, continuing without it: %v",

	// Strategy
	PresetsLoaded:     "Loaded %d strategy presets",
	PresetsLoadFailed: "Failed to load presets: %v",
	AuthEnabled:       "Bearer token auth enabled for /api",
}

// Chinese messages
var messagesZH = Messages{
	// System
	Starting:           "啟動回測服務...",
	ConfigLoaded:       "設定已載入（埠號：%s）",
	UsingDBPath:        "使用資料庫路徑：%s",
	ServerListening:    "服務監聽於 :%s",
	ShuttingDown:       "正在優雅關閉...",
	ShutdownComplete:   "關閉完成",
	ConfigLoadFailed:   "讀取設定失敗：%v",
	DBInitFailed:       "初始化資料庫失敗：%v",
	DBMigrationsFailed: "套用資料庫遷移失敗：%v",
	APIServerError:     "API 伺服器錯誤：%v",
	EngineServiceInit:  "引擎服務初始化完成",

	// Market data
	BinanceFeedStarted: "使用 Binance 行情資料（測試網：%t）",
	MockFeedStarted:    "使用模擬行情資料",
	CandleCacheEnabled: "K 線快取已啟用：%s（有效期 %s）",
	CandleCacheFailed:  "K 線快取無法使用，略過：%v",

	// Strategy
	PresetsLoaded:     "已載入 %d 個策略預設",
	PresetsLoadFailed: "讀取策略預設失敗：%v",
	AuthEnabled:       "/api 已啟用 Bearer 權杖驗證",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
