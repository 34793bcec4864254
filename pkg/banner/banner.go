package banner

import (
	"fmt"

	"chathub/pkg/config"
)

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗██╗  ██╗██╗   ██╗██████╗
██╔════╝██║  ██║██╔══██╗╚══██╔══╝██║  ██║██║   ██║██╔══██╗
██║     ███████║███████║   ██║   ███████║██║   ██║██████╔╝
██║     ██╔══██║██╔══██║   ██║   ██╔══██║██║   ██║██╔══██╗
╚██████╗██║  ██║██║  ██║   ██║   ██║  ██║╚██████╔╝██████╔╝
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚═╝  ╚═╝ ╚═════╝ ╚═════╝
`

// PrintWithEff prints the startup banner with the effective runtime
// configuration: listen address, storage path, key material presence and
// the optional subsystems.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config: %s\n", src)

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("websocat 'ws://localhost%s/ws?user=alice'\n", addr)
	fmt.Printf("curl 'http://localhost%s/v1/dialogs/alice/bob/messages?limit=20'\n", addr)

	fmt.Println("\n== Production? =================================================")
	be, fe, ak := 0, 0, 0
	if eff.Config != nil {
		be = len(eff.Config.Security.APIKeys.Backend)
		fe = len(eff.Config.Security.APIKeys.Frontend)
		ak = len(eff.Config.Security.APIKeys.Admin)
	}
	if be > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", be)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for backend services)")
	}
	if fe > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", fe)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if ak > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", ak)
	} else {
		fmt.Println("- Admin API keys: MISSING (required for admin tooling)")
	}
	if eff.Config != nil && eff.Config.Security.APIKeys.AllowUnauth {
		fmt.Println("- Auth: DISABLED (allow_unauth is set; development only)")
	}

	tlsOK := eff.Config != nil && eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != ""
	if tlsOK {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}

	if eff.DBPath != "" {
		fmt.Printf("- DB Path: %s\n", eff.DBPath)
	} else {
		fmt.Println("- DB Path: not set (use --db or CHATHUB_SERVER_DB_PATH)")
	}

	if eff.Config != nil && eff.Config.Retention.Enabled {
		info := ""
		if eff.Config.Retention.Cron != "" {
			info = "cron=" + eff.Config.Retention.Cron
		} else if eff.Config.Retention.Period != "" {
			info = "period=" + eff.Config.Retention.Period
		}
		if info != "" {
			fmt.Printf("- Retention: enabled (%s)\n", info)
		} else {
			fmt.Println("- Retention: enabled")
		}
	} else {
		fmt.Println("- Retention: disabled")
	}

	if eff.Config != nil && eff.Config.Bridge.Enabled {
		fmt.Printf("- Bridge: enabled (%s)\n", eff.Config.Bridge.Addr)
	} else {
		fmt.Println("- Bridge: disabled (single instance)")
	}

	fmt.Println("\n== Logs: =================================================")
}
