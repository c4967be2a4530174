package rmq

const (
	traceName = "rmq"

	exchangeKind       = "direct"
	exchangeDurable    = true
	exchangeAutoDelete = false
	exchangeInternal   = false
	exchangeNoWait     = false

	queueDurable    = true
	queueAutoDelete = false
	queueExclusive  = false
	queueNoWait     = false

	publishMandatory = false
	publishImmediate = false

	consumeAutoAck   = false
	consumeExclusive = false
	consumeNoLocal   = false
	consumeNoWait    = false

	prefetchCount = 16

	// VerificationRoutingKey carries one entity.VerificationEvent per message.
	VerificationRoutingKey = "verification.completed"
	contentTypeJSON        = "application/json"
)
