package env

import (
	"log"
	"strconv"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zenv"
)

type EnvStruct struct {
	HOME         string `zog:"HOME"`
	PORT         int    `zog:"HATCHERY_ENV_PORT"`
	DATABASE_URL string `zog:"HATCHERY_DATABASE_URL"`
	REDIS_ADDR   string `zog:"HATCHERY_REDIS_ADDR"`
	LISTEN_ADDR  string
	BASE_URL     string
}

var env *EnvStruct

var EnvSchema = z.Struct(z.Shape{
	"HOME":         z.String(),
	"PORT":         z.Int().Default(58120),
	"DATABASE_URL": z.String().Optional(),
	"REDIS_ADDR":   z.String().Optional(),
})

func Get() *EnvStruct {
	if env == nil {
		env = &EnvStruct{}
		errs := EnvSchema.Parse(zenv.NewDataProvider(), env)
		if errs != nil {
			log.Fatal("[hatchery] Failed to parse environment variables", errs)
		}

		env.LISTEN_ADDR = "localhost:" + strconv.Itoa(env.PORT)
		env.BASE_URL = "http://" + env.LISTEN_ADDR
	}
	return env
}
