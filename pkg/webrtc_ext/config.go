package webrtc_ext

import "github.com/pion/webrtc/v3"

// Configuration of the WebRTC API used for all peer connections.
type Config struct {
	// STUN and TURN servers. The relay does not provide any.
	ICEServers []ICEServer `yaml:"iceServers"`
	// Public IP addresses of this host, for hosts behind a 1:1 NAT.
	PublicIPs []string `yaml:"ipAddresses"`
	// Restricts the local UDP ports used for ICE. Both must be set to take effect.
	PortMin uint16 `yaml:"portMin"`
	PortMax uint16 `yaml:"portMax"`
}

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

func (c Config) iceServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, server := range c.ICEServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}

	return servers
}
