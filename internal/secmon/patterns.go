package secmon

import "strings"

// Fixed detection signatures. All matching is case-insensitive substring
// search; inputs are lowercased once at the call site.

// sqlInjectionSignatures covers the classic tautology, stacked-query and
// union probes seen against the panel search endpoints.
var sqlInjectionSignatures = []string{
	"' or 1=1",
	"' or '1'='1",
	"\" or 1=1",
	"'; drop table",
	"; drop table",
	"'; delete from",
	"union select",
	"union all select",
	"' union select",
	"exec xp_cmdshell",
	"waitfor delay",
	"benchmark(",
	"sleep(",
	"load_file(",
	"into outfile",
	"-- -",
	"/**/or/**/",
}

// pathTraversalSignatures lists literal and percent-encoded ../ variants.
var pathTraversalSignatures = []string{
	"../",
	"..\\",
	"%2e%2e%2f",
	"%2e%2e/",
	"..%2f",
	"%2e%2e%5c",
	"..%5c",
	"%252e%252e%252f",
	"....//",
	"/etc/passwd",
	"/etc/shadow",
	"c:\\windows",
}

// suspiciousAgentSignatures marks scanners and script clients. An empty
// User-Agent is treated as suspicious separately.
var suspiciousAgentSignatures = []string{
	"sqlmap",
	"nikto",
	"nmap",
	"masscan",
	"dirbuster",
	"gobuster",
	"wpscan",
	"hydra",
	"metasploit",
	"python-requests",
	"go-http-client",
	"libwww-perl",
}

// blockedUploadExtensions rejects server-executable file types outright.
var blockedUploadExtensions = []string{
	".php", ".php3", ".php4", ".php5", ".phtml",
	".asp", ".aspx", ".jsp", ".jspx",
	".cgi", ".sh", ".bash",
	".py", ".pl", ".rb",
	".exe", ".bat", ".cmd", ".com", ".scr",
}

// scriptContentMarkers flag executable content inside otherwise-allowed
// upload types.
var scriptContentMarkers = []string{
	"<script",
	"<?php",
	"<%",
	"eval(",
	"exec(",
	"system(",
	"passthru(",
	"shell_exec",
	"base64_decode",
	"javascript:",
	"onerror=",
	"onload=",
	"document.cookie",
}

// containsAny reports whether the lowercased haystack contains any of the
// signatures, returning the first match.
func containsAny(lowered string, signatures []string) (string, bool) {
	for _, sig := range signatures {
		if strings.Contains(lowered, sig) {
			return sig, true
		}
	}
	return "", false
}
