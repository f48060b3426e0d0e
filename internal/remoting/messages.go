package remoting

import (
	"github.com/google/uuid"

	"github.com/hgminh-pk/amfgate/internal/amf"
)

// -------------------------------------------------------------------------
// Flex Messaging Classes
// -------------------------------------------------------------------------

// Wire aliases of the flex messaging classes handled by the gateway.
const (
	aliasRemotingMessage    = "flex.messaging.messages.RemotingMessage"
	aliasCommandMessage     = "flex.messaging.messages.CommandMessage"
	aliasAcknowledgeMessage = "flex.messaging.messages.AcknowledgeMessage"
	aliasErrorMessage       = "flex.messaging.messages.ErrorMessage"
)

// CommandMessage operation codes (flex.messaging.messages.CommandMessage).
const (
	CommandSubscribe         int32 = 0
	CommandUnsubscribe       int32 = 1
	CommandPoll              int32 = 2
	CommandClientSync        int32 = 4
	CommandClientPing        int32 = 5
	CommandClusterRequest    int32 = 7
	CommandLogin             int32 = 8
	CommandLogout            int32 = 9
	CommandSessionInvalidate int32 = 10
	CommandMultiSubscribe    int32 = 11
	CommandDisconnect        int32 = 12
	CommandTriggerConnect    int32 = 13
	CommandUnknown           int32 = 10000
)

// AbstractMessage carries the fields shared by every flex message.
type AbstractMessage struct {
	ClientID    amf.Value `amf:"clientId"`
	Destination string    `amf:"destination"`
	MessageID   string    `amf:"messageId"`
	Timestamp   float64   `amf:"timestamp"`
	TimeToLive  float64   `amf:"timeToLive"`
	Headers     amf.Value `amf:"headers"`
	Body        amf.Value `amf:"body"`
}

// RemotingMessage asks the gateway to invoke operation on source with
// the body as the argument list.
type RemotingMessage struct {
	AbstractMessage
	Source    string `amf:"source"`
	Operation string `amf:"operation"`
}

// CommandMessage drives the gateway's session state machine
// (ping, login, logout, disconnect).
type CommandMessage struct {
	AbstractMessage
	Operation     int32  `amf:"operation"`
	CorrelationID string `amf:"correlationId"`
}

// AcknowledgeMessage is the success response to a flex message.
type AcknowledgeMessage struct {
	AbstractMessage
	CorrelationID string `amf:"correlationId"`
}

// ErrorMessage is the failure response to a flex message.
type ErrorMessage struct {
	AcknowledgeMessage
	FaultCode    string    `amf:"faultCode"`
	FaultString  string    `amf:"faultString"`
	FaultDetail  string    `amf:"faultDetail"`
	RootCause    amf.Value `amf:"rootCause"`
	ExtendedData amf.Value `amf:"extendedData"`
}

// RegisterMessages binds the flex messaging aliases into registry as
// built-ins, so ResetMap keeps them.
func RegisterMessages(registry *amf.TypeRegistry) {
	// The prototypes are zero structs; registration cannot fail.
	_ = registry.SetDefaultMapping(aliasRemotingMessage, RemotingMessage{})
	_ = registry.SetDefaultMapping(aliasCommandMessage, CommandMessage{})
	_ = registry.SetDefaultMapping(aliasAcknowledgeMessage, AcknowledgeMessage{})
	_ = registry.SetDefaultMapping(aliasErrorMessage, ErrorMessage{})
}

// newAcknowledge builds the success response for request message fields.
func newAcknowledge(correlationID string, clientID amf.Value, body amf.Value) *AcknowledgeMessage {
	ack := &AcknowledgeMessage{CorrelationID: correlationID}
	ack.MessageID = newMessageID()
	ack.ClientID = clientID
	if ack.ClientID == nil {
		ack.ClientID = newMessageID()
	}
	ack.Body = body
	return ack
}

// newErrorMessage builds the failure response for a flex request.
func newErrorMessage(correlationID string, faultCode, faultString, faultDetail string) *ErrorMessage {
	em := &ErrorMessage{
		FaultCode:   faultCode,
		FaultString: faultString,
		FaultDetail: faultDetail,
	}
	em.CorrelationID = correlationID
	em.MessageID = newMessageID()
	return em
}

// newMessageID mints a message identifier in the UUID form flex clients
// expect.
func newMessageID() string {
	return uuid.NewString()
}
