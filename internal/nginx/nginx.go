package nginx

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/Ezrahel/auto-deploy-hng/internal/exitcode"
	"github.com/Ezrahel/auto-deploy-hng/internal/logger"
	"github.com/Ezrahel/auto-deploy-hng/internal/sshx"
)

const (
	sitesAvailable = "/etc/nginx/sites-available"
	sitesEnabled   = "/etc/nginx/sites-enabled"
)

// siteTemplate is the reverse-proxy server block: port 80 to the application
// port, standard forwarding headers plus WebSocket upgrade support.
var siteTemplate = template.Must(template.New("site").Parse(`server {
    listen 80;
    server_name _;

    location / {
        proxy_pass http://127.0.0.1:{{.Port}};
        proxy_http_version 1.1;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
    }
}
`))

// Configurator writes and activates the nginx site for a project.
type Configurator struct {
	runner sshx.Runner
	log    *logger.Logger
}

// New creates a Configurator.
func New(runner sshx.Runner, log *logger.Logger) *Configurator {
	return &Configurator{runner: runner, log: log.WithPrefix("proxy")}
}

// RenderSite produces the server block for the given application port.
func RenderSite(port int) (string, error) {
	var buf bytes.Buffer
	if err := siteTemplate.Execute(&buf, struct{ Port int }{port}); err != nil {
		return "", fmt.Errorf("render site config: %w", err)
	}
	return buf.String(), nil
}

// Configure writes the site file, replaces the enabled-sites symlink, then
// validates the full configuration before reloading. A failing `nginx -t`
// aborts without reloading so the previously active configuration keeps
// serving traffic; reload (not restart) is used for the same reason.
func (c *Configurator) Configure(ctx context.Context, projectName string, port int) error {
	site, err := RenderSite(port)
	if err != nil {
		return exitcode.Fatal(exitcode.ProxyConfigFailed, err, "could not render proxy config")
	}

	sitePath := fmt.Sprintf("%s/%s", sitesAvailable, projectName)
	linkPath := fmt.Sprintf("%s/%s", sitesEnabled, projectName)

	c.log.Info("Writing proxy site %s (port 80 -> %d)", sitePath, port)

	steps := []sshx.Command{
		sshx.Cmd("sh", "-c", fmt.Sprintf("printf '%%s' %s | sudo tee %s >/dev/null",
			sshx.Quote(site), sshx.Quote(sitePath))),
		sshx.Cmd("ln", "-sf", sitePath, linkPath).WithSudo(),
		sshx.Cmd("rm", "-f", sitesEnabled+"/default").WithSudo(),
	}
	for _, step := range steps {
		if _, err := c.runner.Run(ctx, step); err != nil {
			return exitcode.Fatal(exitcode.ProxyConfigFailed, err, "proxy site activation failed")
		}
	}

	c.log.Info("Validating nginx configuration")
	if res, err := c.runner.Run(ctx, sshx.Cmd("nginx", "-t").WithSudo()); err != nil {
		detail := ""
		if res != nil {
			detail = res.Stderr
		}
		return exitcode.Fatal(exitcode.ProxyConfigFailed, err,
			"nginx configuration is invalid, reload skipped: %s", detail)
	}

	if _, err := c.runner.Run(ctx, sshx.Cmd("systemctl", "reload", "nginx").WithSudo()); err != nil {
		return exitcode.Fatal(exitcode.ProxyConfigFailed, err, "nginx reload failed")
	}

	c.log.Success("Reverse proxy active on port 80")
	return nil
}
