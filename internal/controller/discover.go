package controller

import (
	"log"
	"net/http"
	"net/netip"

	"example.com/bt-fleet/internal/scan"
)

// ScanHosts probes for SSH hosts that could run an agent, marking the ones
// already known by their last reported IP. ?subnets= overrides the local
// subnets.
func (c *Controller) ScanHosts(w http.ResponseWriter, r *http.Request) {
	var (
		prefixes []netip.Prefix
		err      error
	)
	if raw := r.URL.Query().Get("subnets"); raw != "" {
		prefixes, err = scan.ParseSubnets(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else if prefixes, err = scan.LocalSubnets(); err != nil {
		log.Printf("scan: %v", err)
		respondError(w, http.StatusInternalServerError, "no subnet to scan")
		return
	}
	if len(prefixes) == 0 {
		respondError(w, http.StatusBadRequest, "subnets required")
		return
	}
	for _, p := range prefixes {
		if _, err := scan.Hosts(p); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	candidates, err := c.Scanner.Scan(r.Context(), prefixes, nil)
	if err != nil {
		log.Printf("scan: %v", err)
		respondError(w, http.StatusInternalServerError, "scan failed")
		return
	}
	agents, err := c.DB.ListAgents(r.Context())
	if err != nil {
		log.Printf("scan: list agents: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	byIP := make(map[string]string, len(agents))
	for _, a := range agents {
		if a.IP != "" {
			byIP[a.IP] = a.AgentID
		}
	}
	for i := range candidates {
		candidates[i].AgentID = byIP[candidates[i].IP]
	}
	respondJSON(w, http.StatusOK, candidates)
}
