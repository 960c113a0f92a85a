package connectors

const (
	TopicConnStatus = "conn.status"
	TopicLineIn     = "line.in"
	TopicRawLineIn  = "raw.line.in"
	TopicRawLineOut = "raw.line.out"
	TopicSubmit     = "settings.submit"
)
