package bus

const (
	TopicDashboard = "deployctl.dashboard"
	TopicUIActions = "deployctl.ui.actions"
)

const (
	TypeRenderRequest = "dashboard.render"
	TypeActivity      = "dashboard.activity"
	TypeActionRequest = "ui.action.request"
)
