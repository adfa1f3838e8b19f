package executor

import (
	"encoding/json"
	"fmt"
)

// OpKind is the operation kind a tool executes as. Command construction
// dispatches on the kind through a fixed builder table, never on tool
// name strings scattered through the executor.
type OpKind int

const (
	// OpCode runs caller-supplied source through an interpreter one-shot.
	OpCode OpKind = iota
	// OpShell wraps a command string in a non-interactive shell.
	OpShell
	// OpAnalysis synthesizes a python script that parses structured content.
	OpAnalysis
	// OpFetch synthesizes a python script that fetches and extracts a URL.
	OpFetch
)

// String returns the kind's log name.
func (k OpKind) String() string {
	switch k {
	case OpCode:
		return "code"
	case OpShell:
		return "shell"
	case OpAnalysis:
		return "analysis"
	case OpFetch:
		return "fetch"
	default:
		return "unknown"
	}
}

// kindForTool maps a tool name to its operation kind.
func kindForTool(name string) (OpKind, bool) {
	switch name {
	case "code_execution":
		return OpCode, true
	case "bash_command":
		return OpShell, true
	case "file_analysis":
		return OpAnalysis, true
	case "web_fetch":
		return OpFetch, true
	default:
		return 0, false
	}
}

// builderFunc constructs the container command for one operation kind.
type builderFunc func(args map[string]any) ([]string, error)

// builders is the kind-keyed command strategy table.
var builders = map[OpKind]builderFunc{
	OpCode:     buildCodeCommand,
	OpShell:    buildShellCommand,
	OpAnalysis: buildAnalysisCommand,
	OpFetch:    buildFetchCommand,
}

// buildCodeCommand invokes the target interpreter in one-shot mode with
// the code as a single argument. The code never touches a filesystem
// location visible outside the container.
func buildCodeCommand(args map[string]any) ([]string, error) {
	code := stringArg(args, "code")
	switch language := stringArg(args, "language"); language {
	case "python", "":
		return []string{"python3", "-c", code}, nil
	case "bash":
		return []string{"bash", "-c", code}, nil
	case "javascript", "node":
		return []string{"node", "-e", code}, nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", language)
	}
}

// buildShellCommand wraps the command string in a non-interactive shell.
func buildShellCommand(args map[string]any) ([]string, error) {
	return []string{"bash", "-c", stringArg(args, "command")}, nil
}

// analysisScript parses structured content (json/yaml/csv, or plain text)
// and applies one of parse/validate/summarize/extract. Call arguments
// arrive through a single JSON object decoded at the top, so no argument
// value can break out of the script's literal syntax.
const analysisScript = `
import csv
import io
import json
import yaml

params = json.loads(%s)
content = params["content"]
file_type = params["file_type"]
operation = params["operation"]
query = params["query"]

def detect_type(c):
    c = c.strip()
    if c.startswith("{") or c.startswith("["):
        return "json"
    if c.startswith("---") or ": " in c.split("\n")[0]:
        return "yaml"
    if "," in c.split("\n")[0]:
        return "csv"
    return "text"

if file_type == "auto":
    file_type = detect_type(content)

result = {"type": file_type, "operation": operation}

try:
    if file_type == "json":
        data = json.loads(content)
    elif file_type == "yaml":
        data = yaml.safe_load(content)
    elif file_type == "csv":
        data = list(csv.DictReader(io.StringIO(content)))
    else:
        data = content

    if operation == "parse":
        result["data"] = data
    elif operation == "validate":
        result["valid"] = True
    elif operation == "summarize":
        if isinstance(data, list):
            result["count"] = len(data)
            if data:
                result["fields"] = list(data[0].keys()) if isinstance(data[0], dict) else None
        elif isinstance(data, dict):
            result["keys"] = list(data.keys())
        else:
            result["length"] = len(str(data))
    elif operation == "extract" and query:
        parts = query.replace("$.", "").split(".")
        current = data
        for part in parts:
            if "[" in part:
                key, idx = part.rstrip("]").split("[")
                current = current[key] if key else current
                if idx == "*":
                    current = [item for item in current]
                else:
                    current = current[int(idx)]
            else:
                current = current[part]
        result["extracted"] = current

    print(json.dumps(result, indent=2, default=str))
except Exception as e:
    print(json.dumps({"error": str(e), "operation": operation}))
`

// buildAnalysisCommand synthesizes the structured-data analysis script.
func buildAnalysisCommand(args map[string]any) ([]string, error) {
	params := map[string]any{
		"content":   stringArg(args, "content"),
		"file_type": stringArgDefault(args, "file_type", "auto"),
		"operation": stringArgDefault(args, "operation", "parse"),
		"query":     stringArg(args, "query"),
	}
	literal, err := pyJSONLiteral(params)
	if err != nil {
		return nil, fmt.Errorf("encoding analysis arguments: %w", err)
	}
	return []string{"python3", "-c", fmt.Sprintf(analysisScript, literal)}, nil
}

// fetchScript fetches a URL and extracts json/html/text/links/images/meta.
// Same single-JSON-object argument convention as the analysis script.
const fetchScript = `
import json
import requests
from bs4 import BeautifulSoup
from urllib.parse import urljoin

params = json.loads(%s)
url = params["url"]
method = params["method"]
headers = params["headers"]
body = params["body"]
extract = params["extract"]
selector = params["selector"]

try:
    resp = requests.request(method, url, headers=headers, data=body or None, timeout=25)
    result = {"status": resp.status_code, "url": url}

    if extract == "json":
        result["data"] = resp.json()
    elif extract == "html":
        result["html"] = resp.text[:50000]
    elif extract == "text":
        soup = BeautifulSoup(resp.text, "html.parser")
        for tag in soup(["script", "style", "nav", "footer"]):
            tag.decompose()
        result["text"] = soup.get_text(separator="\n", strip=True)[:20000]
    elif extract == "links":
        soup = BeautifulSoup(resp.text, "html.parser")
        elements = soup.select(selector) if selector else soup.find_all("a", href=True)
        links = []
        for el in elements[:100]:
            href = el.get("href", "")
            if href:
                links.append({"text": el.get_text(strip=True)[:100], "href": urljoin(url, href)})
        result["links"] = links
    elif extract == "images":
        soup = BeautifulSoup(resp.text, "html.parser")
        elements = soup.select(selector) if selector else soup.find_all("img", src=True)
        result["images"] = [urljoin(url, img.get("src", "")) for img in elements[:50]]
    elif extract == "meta":
        soup = BeautifulSoup(resp.text, "html.parser")
        desc = soup.find("meta", attrs={"name": "description"})
        result["meta"] = {
            "title": soup.title.string if soup.title else None,
            "description": desc["content"] if desc else None,
        }

    print(json.dumps(result, indent=2, default=str))
except Exception as e:
    print(json.dumps({"error": str(e), "url": url}))
`

// buildFetchCommand synthesizes the web fetch script.
func buildFetchCommand(args map[string]any) ([]string, error) {
	headers, _ := args["headers"].(map[string]any)
	if headers == nil {
		headers = map[string]any{}
	}
	params := map[string]any{
		"url":      stringArg(args, "url"),
		"method":   stringArgDefault(args, "method", "GET"),
		"headers":  headers,
		"body":     stringArg(args, "body"),
		"extract":  stringArgDefault(args, "extract", "text"),
		"selector": stringArg(args, "selector"),
	}
	literal, err := pyJSONLiteral(params)
	if err != nil {
		return nil, fmt.Errorf("encoding fetch arguments: %w", err)
	}
	return []string{"python3", "-c", fmt.Sprintf(fetchScript, literal)}, nil
}

// pyJSONLiteral double-encodes a value: first to its JSON form, then as a
// JSON string of that form. The outer encoding is a valid python string
// literal, so the embedded json.loads call reconstructs the value exactly
// and no argument content is ever interpreted as script syntax.
func pyJSONLiteral(v any) (string, error) {
	inner, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	outer, err := json.Marshal(string(inner))
	if err != nil {
		return "", err
	}
	return string(outer), nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func stringArgDefault(args map[string]any, key, def string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return def
}
