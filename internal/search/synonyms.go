package search

// CodeSynonyms maps query vocabulary to the words code tends to use for
// the same idea. Keys and values are lower case; the lexical tokenizer
// folds case anyway.
var CodeSynonyms = map[string][]string{
	// declarations
	"function":  {"func", "method", "def", "fn"},
	"method":    {"func", "function", "def"},
	"class":     {"type", "struct", "interface"},
	"struct":    {"type", "class"},
	"interface": {"protocol", "trait", "contract"},
	"object":    {"instance", "obj", "struct"},

	// errors
	"error":     {"err", "exception", "fail", "failure"},
	"exception": {"error", "err", "panic"},
	"handler":   {"handle", "callback"},
	"retry":     {"attempt", "backoff"},
	"backoff":   {"retry", "delay", "exponential"},
	"panic":     {"fatal", "crash", "abort"},

	// network
	"request":  {"req", "http"},
	"response": {"resp", "reply"},
	"endpoint": {"handler", "route", "api"},
	"server":   {"serve", "listener"},
	"client":   {"conn", "connection"},

	// auth
	"authentication": {"auth", "login", "authenticate", "credentials"},
	"authenticate":   {"auth", "login", "verify"},
	"auth":           {"authentication", "login", "token"},
	"login":          {"signin", "auth", "authenticate", "session"},
	"password":       {"passwd", "credential", "hash"},
	"user":           {"account", "username", "principal"},
	"permission":     {"authorize", "role", "access"},

	// configuration
	"context":       {"ctx"},
	"configuration": {"config", "cfg", "settings"},
	"config":        {"cfg", "configuration", "settings", "options"},
	"options":       {"opts", "config", "settings"},
	"settings":      {"config", "options", "preferences"},

	// storage
	"database":   {"db", "store", "storage"},
	"store":      {"storage", "database", "repository"},
	"storage":    {"store", "database", "persist"},
	"repository": {"repo", "store"},
	"query":      {"search", "find", "select"},
	"insert":     {"add", "create", "save"},
	"update":     {"modify", "edit", "change"},
	"delete":     {"remove", "drop", "destroy"},

	// retrieval
	"search":    {"find", "query", "lookup", "retrieve"},
	"find":      {"search", "get", "lookup"},
	"index":     {"indexer", "indexing"},
	"embedding": {"embed", "vector", "embedder"},
	"vector":    {"embedding", "similarity"},
	"chunk":     {"segment", "block"},
	"parse":     {"parser", "parsing"},

	// verbs
	"create": {"new", "make", "init"},
	"get":    {"fetch", "retrieve", "read", "load"},
	"read":   {"get", "load", "fetch"},
	"write":  {"save", "store", "put"},
	"save":   {"write", "store", "persist"},
	"close":  {"shutdown", "stop", "cleanup"},
	"start":  {"begin", "run", "launch"},
	"stop":   {"halt", "close", "shutdown"},

	// concurrency
	"concurrent": {"goroutine", "parallel", "async"},
	"channel":    {"chan", "pipe"},
	"lock":       {"mutex", "sync"},
	"wait":       {"block", "await"},

	// files
	"file":      {"path", "filesystem"},
	"directory": {"dir", "folder"},
	"watch":     {"watcher", "fsnotify", "notify"},

	// logging
	"log":     {"logger", "logging", "slog"},
	"warning": {"warn", "alert"},

	// natural language
	"implementation": {"impl", "implement"},
	"parameter":      {"param", "arg", "argument"},
	"argument":       {"arg", "param", "parameter"},
}
