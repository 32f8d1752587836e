// Command idcore wires a full ServiceContext from a YAML config file and
// reports it ready, in the teacher's goctl-scaffolded main.go style (flag
// for the config path, conf.MustLoad, construct the ServiceContext) minus
// the rest.MustNewServer/handler.RegisterHandlers calls: this repository
// is a library of Go methods an HTTP layer would call, not a server
// itself, per SPEC_FULL.md §6.
package main

import (
	"flag"
	"fmt"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/entativa/id/internal/config"
	"github.com/entativa/id/internal/svc"
)

var configFile = flag.String("f", "etc/idcore.yaml", "the config file")

func main() {
	flag.Parse()

	c := config.Default()
	conf.MustLoad(*configFile, &c)

	ctx := svc.NewServiceContext(c)

	jwks, err := ctx.Tokens.JWKS()
	if err != nil {
		logx.Must(err)
	}

	fmt.Printf("entativa id core ready: issuer=%s signing keys=%d\n", c.Token.Issuer, len(jwks.Keys))
}
