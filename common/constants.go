package common

type telemetryConstants struct {
	Generic   genericConstants
	RPC       rpcConstants
	Bus       busConstants
	Mux       muxConstants
	Protocol  protocolConstants
	Session   sessionConstants
	Transport transportConstants
}

type genericConstants struct {
	TotalServiceCalls string
}

type rpcConstants struct {
	Prefix                 string
	RequestCounter         string
	ResponseMatchedCounter string
	ResponseDroppedCounter string
	TimeoutCounter         string
	NotificationInCounter  string
	NotificationOutCounter string
	InvalidMessageCounter  string
	UnroutedCounter        string
}

type busConstants struct {
	Prefix            string
	PublishCounter    string
	SubscribeCounter  string
	LagCounter        string
	NoListenerCounter string
}

type muxConstants struct {
	Prefix                 string
	RoundMessageCounter    string
	OfflineMessageCounter  string
	PartialMessageCounter  string
	BufferedCounter        string
	ReplayedCounter        string
	UnknownPhaseCounter    string
	DecodeFailureCounter   string
	FilteredMessageCounter string
}

type protocolConstants struct {
	Prefix                  string
	PhaseStartedCounter     string
	PhaseCompletedCounter   string
	PhaseFailedCounter      string
	MessageInCounter        string
	MessageOutCounter       string
	PartialCollectedCounter string
	CombineCounter          string
}

type sessionConstants struct {
	Prefix                string
	GroupCreateCounter    string
	GroupJoinCounter      string
	SessionCreateCounter  string
	SessionSignupCounter  string
	SessionLoginCounter   string
	SessionCreatedCounter string
	SessionReadyCounter   string
	ShareCachedCounter    string
	ShareHitCounter       string
	ShareMissCounter      string
}

type transportConstants struct {
	Prefix            string
	DialCounter       string
	DialRetryCounter  string
	SendCounter       string
	ReceiveCounter    string
	SendFailedCounter string
	BacklogCounter    string
}

var TelemetryConstants = telemetryConstants{
	Generic: genericConstants{
		TotalServiceCalls: "service_total",
	},
	RPC: rpcConstants{
		Prefix:                 "rpc_",
		RequestCounter:         "request_total",
		ResponseMatchedCounter: "response_matched_total",
		ResponseDroppedCounter: "response_dropped_total",
		TimeoutCounter:         "request_timeout_total",
		NotificationInCounter:  "notification_in_total",
		NotificationOutCounter: "notification_out_total",
		InvalidMessageCounter:  "invalid_message_total",
		UnroutedCounter:        "notification_unrouted_total",
	},
	Bus: busConstants{
		Prefix:            "bus_",
		PublishCounter:    "publish_total",
		SubscribeCounter:  "subscribe_total",
		LagCounter:        "subscriber_lag_total",
		NoListenerCounter: "publish_no_listener_total",
	},
	Mux: muxConstants{
		Prefix:                 "mux_",
		RoundMessageCounter:    "round_message_total",
		OfflineMessageCounter:  "offline_message_total",
		PartialMessageCounter:  "partial_message_total",
		BufferedCounter:        "message_buffered_total",
		ReplayedCounter:        "message_replayed_total",
		UnknownPhaseCounter:    "unknown_phase_total",
		DecodeFailureCounter:   "decode_failure_total",
		FilteredMessageCounter: "message_filtered_total",
	},
	Protocol: protocolConstants{
		Prefix:                  "protocol_",
		PhaseStartedCounter:     "phase_started_total",
		PhaseCompletedCounter:   "phase_completed_total",
		PhaseFailedCounter:      "phase_failed_total",
		MessageInCounter:        "message_in_total",
		MessageOutCounter:       "message_out_total",
		PartialCollectedCounter: "partial_collected_total",
		CombineCounter:          "combine_total",
	},
	Session: sessionConstants{
		Prefix:                "session_",
		GroupCreateCounter:    "group_create_total",
		GroupJoinCounter:      "group_join_total",
		SessionCreateCounter:  "create_total",
		SessionSignupCounter:  "signup_total",
		SessionLoginCounter:   "login_total",
		SessionCreatedCounter: "created_event_total",
		SessionReadyCounter:   "ready_event_total",
		ShareCachedCounter:    "share_cached_total",
		ShareHitCounter:       "share_hit_total",
		ShareMissCounter:      "share_miss_total",
	},
	Transport: transportConstants{
		Prefix:            "transport_",
		DialCounter:       "dial_total",
		DialRetryCounter:  "dial_retry_total",
		SendCounter:       "send_total",
		ReceiveCounter:    "receive_total",
		SendFailedCounter: "send_failed_total",
		BacklogCounter:    "backlog_total",
	},
}
