package common

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvSymbol           = "SYMBOL"
	EnvHistorySource    = "HISTORY_SOURCE"
	EnvHistoryURL       = "HISTORY_URL"
	EnvHistoryCSV       = "HISTORY_CSV"
	EnvDataPath         = "DATA_PATH"
	EnvModelPath        = "MODEL_PATH"
	EnvPythonPath       = "PYTHON_PATH"
	EnvInferenceScript  = "INFERENCE_SCRIPT"
	EnvInferenceTimeout = "INFERENCE_TIMEOUT"
	EnvAllowFallback    = "ALLOW_FALLBACK"
	EnvRESTTimeout      = "REST_TIMEOUT"
	EnvServerPort       = "SERVER_PORT"
	EnvLogLevel         = "LOG_LEVEL"
)

// Configuration defaults
const (
	DefaultSymbol           = "BTC-USD"
	DefaultHistorySource    = "yahoo"
	DefaultHistoryURL       = "https://query1.finance.yahoo.com"
	DefaultDataPath         = "data"
	DefaultModelPath        = "btc_usd_rf_model.pkl"
	DefaultServerPort       = 8080
	DefaultLogLevel         = "info"
	DefaultInferenceTimeout = "5s"
	DefaultRESTTimeout      = "10s"
)

// Validation constants
const (
	MinServerPort = 1024
	MaxServerPort = 65535
)

// User-facing messages
const (
	MsgPredictUp   = "📈 The model predicts the price will go UP with %s confidence."
	MsgPredictDown = "📉 The model predicts the price will go DOWN with %s confidence."

	ErrMsgMalformedDate         = "Please enter the date in YYYY-MM-DD format."
	ErrMsgDateNotInFuture       = "Please enter a date that is tomorrow or later."
	ErrMsgInsufficientHistory   = "Not enough price history to compute features (at least 3 observations are required)."
	ErrMsgDivisionByZero        = "The previous closing price is zero, so the percentage change cannot be computed."
	ErrMsgSchemaMismatch        = "The computed features do not match the features the model was trained on."
	ErrMsgPredictionFailed      = "The model failed to produce a prediction."
	ErrMsgDataSourceUnavailable = "Historical price data is currently unavailable."
	ErrMsgModelLoadFailed       = "The prediction model could not be loaded."
	ErrMsgUnexpected            = "Unexpected error while predicting."
)
