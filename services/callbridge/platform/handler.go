package platform

// ConnectionHandler receives the platform's callbacks. Connection creation
// requests come first; every later callback addresses an existing call by
// id.
type ConnectionHandler interface {
	OnCreateIncomingConnection(req ConnectionRequest) ConnectionResult
	OnCreateOutgoingConnection(req ConnectionRequest) ConnectionResult
	OnCreateIncomingConnectionFailed(req ConnectionRequest)
	OnCreateOutgoingConnectionFailed(req ConnectionRequest)
	OnConference(first, second string)

	OnAnswer(callID string)
	OnReject(callID string)
	OnAbort(callID string)
	OnDisconnect(callID string)
	OnHold(callID string)
	OnUnhold(callID string)
	OnPlayDTMF(callID string, digit rune)
	OnAudioStateChanged(callID string, muted bool, route int, supportedRoutes int)
	OnExtrasChanged(callID string, extras map[string]any)
}
