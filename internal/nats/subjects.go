package nats

// NATS Subject 常量定义
const (
	// SubjectLogicUpstream Gateway -> Logic 上行消息
	SubjectLogicUpstream = "arena.logic.upstream"

	// 完整格式: arena.gateway.{gateway_id}.downstream
	SubjectGatewayDownstreamPrefix = "arena.gateway."
	SubjectGatewayDownstreamSuffix = ".downstream"
)

// BuildGatewayDownstreamSubject 构建网关节点下行 Subject
func BuildGatewayDownstreamSubject(gatewayID string) string {
	return SubjectGatewayDownstreamPrefix + gatewayID + SubjectGatewayDownstreamSuffix
}
