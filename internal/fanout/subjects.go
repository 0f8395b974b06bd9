package fanout

// NATS Subject 常量定义
const (
	// SubjectDownstreamPrefix 核心 -> 网关 下行事件前缀
	// 完整格式: chat.access.{node_id}.downstream
	SubjectDownstreamPrefix = "chat.access."
	SubjectDownstreamSuffix = ".downstream"
)

// BuildDownstreamSubject 构建网关节点下行 Subject
func BuildDownstreamSubject(nodeID string) string {
	return SubjectDownstreamPrefix + nodeID + SubjectDownstreamSuffix
}
