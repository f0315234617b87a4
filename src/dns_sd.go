package pacsat

/*------------------------------------------------------------------
 *
 * Purpose:   	Announce the KISS over TCP service using DNS-SD
 *
 * Description:
 *
 *     Client applications that speak KISS over TCP can discover the
 *     server on the local network instead of being told an address
 *     and port.  Even more so on a mobile device such an Android or
 *     iOS phone or tablet.
 *
 *     This uses the pure-Go github.com/brutella/dnssd package for
 *     cross-platform mDNS/DNS-SD service announcement without requiring
 *     any system daemon or C library dependencies.
 */

import (
	"context"

	"github.com/brutella/dnssd"
)

const DNS_SD_SERVICE = "_kiss-tnc._tcp"

func dns_sd_announce(name string, kiss_port int) {
	if name == "" {
		name = dns_sd_default_service_name()
	}

	var cfg = dnssd.Config{ //nolint:exhaustruct
		Name: name,
		Type: DNS_SD_SERVICE,
		Port: kiss_port,
	}

	var sv, svErr = dnssd.NewService(cfg)
	if svErr != nil {
		main_log.Errorf("DNS-SD: Failed to create service: %v", svErr)

		return
	}

	var rp, rpErr = dnssd.NewResponder()
	if rpErr != nil {
		main_log.Errorf("DNS-SD: Failed to create responder: %v", rpErr)

		return
	}

	var _, addErr = rp.Add(sv)
	if addErr != nil {
		main_log.Errorf("DNS-SD: Failed to add service: %v", addErr)

		return
	}

	main_log.Infof("DNS-SD: Announcing KISS TCP on port %d as '%s'", kiss_port, name)

	go func() {
		var respondErr = rp.Respond(context.Background())
		if respondErr != nil {
			main_log.Errorf("DNS-SD: Responder error: %v", respondErr)
		}
	}()
}
