package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
)

const usage = `用法: botctl [-addr URL] [-token T] <命令> [参数]

命令:
  status                 查看引擎状态
  commands               查看命令队列
  saque <valor>          从储备提取
  nivel <NS>             固定安全等级（关闭轮换）
  padrao <7,7,6>         设置加速模式
  pausar | retomar | reiniciar`

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", envOr("BOTCTL_ADDR", "http://127.0.0.1:8686"), "控制面地址")
	token := flag.String("token", os.Getenv("CONTROLPLANE_TOKEN"), "控制面 token")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(*addr, "/")).
		SetTimeout(10 * time.Second).
		SetHeader("Accept", "application/json")
	if *token != "" {
		client.SetAuthToken(*token)
	}

	if err := run(client, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func run(client *resty.Client, args []string) error {
	name := strings.ToLower(args[0])
	switch name {
	case "status":
		return get(client, "/api/status")
	case "commands":
		return get(client, "/api/commands")
	}

	req, err := buildCommand(name, args[1:])
	if err != nil {
		return err
	}
	resp, err := client.R().SetBody(req).Post("/api/commands")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	fmt.Println(prettyJSON(resp.Body()))
	return nil
}

type commandRequest struct {
	Command string            `json:"command"`
	Params  map[string]string `json:"params,omitempty"`
}

// buildCommand 位置参数 -> 命令参数
func buildCommand(name string, args []string) (commandRequest, error) {
	req := commandRequest{Command: name}
	need := func(key string) error {
		if len(args) < 1 || strings.TrimSpace(args[0]) == "" {
			return fmt.Errorf("%s 需要参数 <%s>", name, key)
		}
		req.Params = map[string]string{key: strings.Join(args, ",")}
		return nil
	}
	switch name {
	case "saque":
		if err := need("valor"); err != nil {
			return req, err
		}
		req.Params["valor"] = args[0]
	case "nivel":
		if err := need("nivel"); err != nil {
			return req, err
		}
		req.Params["nivel"] = args[0]
	case "padrao":
		if err := need("niveis"); err != nil {
			return req, err
		}
	case "pausar", "retomar", "reiniciar":
	default:
		return req, fmt.Errorf("未知命令 %q\n\n%s", name, usage)
	}
	return req, nil
}

func get(client *resty.Client, path string) error {
	resp, err := client.R().Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	fmt.Println(prettyJSON(resp.Body()))
	return nil
}

func prettyJSON(b []byte) string {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return string(b)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(b)
	}
	return string(out)
}
