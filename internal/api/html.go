package api

// indexHTML is the single-page frontend served at /.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>dealtalk</title>
<style>
  body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 0; background: #f4f5f7; color: #222; }
  header { background: #1a1d24; color: #fff; padding: 14px 24px; font-size: 18px; font-weight: 600; }
  main { max-width: 960px; margin: 24px auto; padding: 0 16px; display: grid; gap: 20px; }
  section { background: #fff; border-radius: 8px; padding: 18px; box-shadow: 0 1px 3px rgba(0,0,0,.08); }
  h2 { margin: 0 0 12px; font-size: 15px; text-transform: uppercase; letter-spacing: .04em; color: #555; }
  input[type=text], textarea { width: 100%; box-sizing: border-box; padding: 8px; border: 1px solid #ccc; border-radius: 5px; font-size: 14px; }
  button { background: #2563eb; color: #fff; border: 0; border-radius: 5px; padding: 8px 16px; font-size: 14px; cursor: pointer; }
  button:disabled { background: #9ab; cursor: wait; }
  button.danger { background: #dc2626; }
  .row { display: flex; gap: 8px; margin-top: 8px; align-items: center; }
  .row label { font-size: 13px; color: #555; }
  .row input[type=number] { width: 70px; padding: 6px; border: 1px solid #ccc; border-radius: 5px; }
  table { width: 100%; border-collapse: collapse; font-size: 14px; }
  td, th { text-align: left; padding: 6px 8px; border-bottom: 1px solid #eee; }
  tr.selected { background: #eef3fe; }
  #chatlog { height: 260px; overflow-y: auto; border: 1px solid #e5e5e5; border-radius: 5px; padding: 10px; font-size: 14px; margin-bottom: 8px; }
  .msg-user { text-align: right; color: #2563eb; margin: 6px 0; }
  .msg-model { text-align: left; color: #222; margin: 6px 0; white-space: pre-wrap; }
  #status { font-size: 13px; color: #777; margin-top: 8px; min-height: 18px; }
</style>
</head>
<body>
<header>dealtalk — thread scraper &amp; chat</header>
<main>
  <section>
    <h2>Scrape a thread</h2>
    <input type="text" id="url" placeholder="https://slickdeals.net/f/12345678-some-deal">
    <div class="row">
      <label>Max pages <input type="number" id="maxPages" value="10" min="1"></label>
      <label><input type="checkbox" id="forceRefresh"> Force refresh</label>
      <button id="scrapeBtn" onclick="scrape()">Scrape</button>
    </div>
    <div id="status"></div>
  </section>

  <section>
    <h2>Saved threads</h2>
    <table id="threads"><thead><tr><th>Title</th><th>Modified</th><th>Size</th></tr></thead><tbody></tbody></table>
    <div class="row">
      <button onclick="loadThreads()">Refresh</button>
      <button class="danger" onclick="deleteSelected()">Delete selected</button>
      <button class="danger" onclick="deleteAll()">Delete all</button>
    </div>
  </section>

  <section>
    <h2>Chat</h2>
    <div id="chatlog"></div>
    <textarea id="question" rows="2" placeholder="Ask about the selected thread..."></textarea>
    <div class="row">
      <label><input type="checkbox" id="useSummary" checked> Use summary (saves tokens)</label>
      <button id="chatBtn" onclick="ask()">Ask</button>
    </div>
  </section>
</main>
<script>
let selected = null;
let history = [];

function setStatus(msg) { document.getElementById('status').textContent = msg; }

async function scrape() {
  const btn = document.getElementById('scrapeBtn');
  btn.disabled = true;
  setStatus('Scraping...');
  try {
    const res = await fetch('/api/scrape', {
      method: 'POST',
      headers: {'Content-Type': 'application/json'},
      body: JSON.stringify({
        url: document.getElementById('url').value.trim(),
        max_pages: parseInt(document.getElementById('maxPages').value, 10),
        force_refresh: document.getElementById('forceRefresh').checked,
      }),
    });
    const data = await res.json();
    if (!res.ok) { setStatus('Error (' + (data.kind || res.status) + '): ' + data.error); return; }
    let msg = data.comment_count + ' comments (' + data.newly_added_count + ' new, ' + data.source + ')';
    if (data.partial) msg += ' — partial: ' + data.partial_reason;
    setStatus(msg);
    loadThreads();
  } finally { btn.disabled = false; }
}

async function loadThreads() {
  const res = await fetch('/api/threads');
  const items = await res.json();
  const tbody = document.querySelector('#threads tbody');
  tbody.innerHTML = '';
  for (const it of items) {
    const tr = document.createElement('tr');
    tr.innerHTML = '<td>' + it.title + '</td><td>' + new Date(it.modified).toLocaleString() +
                   '</td><td>' + (it.size / 1024).toFixed(1) + ' KB</td>';
    tr.onclick = () => {
      document.querySelectorAll('#threads tr').forEach(r => r.classList.remove('selected'));
      tr.classList.add('selected');
      selected = it.filename;
      history = [];
      document.getElementById('chatlog').innerHTML = '';
    };
    tbody.appendChild(tr);
  }
}

async function deleteSelected() {
  if (!selected) { setStatus('Select a thread first'); return; }
  await fetch('/api/threads/delete', {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({filenames: [selected]}),
  });
  selected = null;
  loadThreads();
}

async function deleteAll() {
  await fetch('/api/threads/delete_all', {method: 'POST'});
  selected = null;
  loadThreads();
}

function appendMsg(cls, text) {
  const div = document.createElement('div');
  div.className = cls;
  div.textContent = text;
  const log = document.getElementById('chatlog');
  log.appendChild(div);
  log.scrollTop = log.scrollHeight;
}

async function ask() {
  if (!selected) { setStatus('Select a thread first'); return; }
  const q = document.getElementById('question').value.trim();
  if (!q) return;
  const btn = document.getElementById('chatBtn');
  btn.disabled = true;
  appendMsg('msg-user', q);
  document.getElementById('question').value = '';
  try {
    const res = await fetch('/api/chat', {
      method: 'POST',
      headers: {'Content-Type': 'application/json'},
      body: JSON.stringify({
        thread_id: selected,
        message: q,
        history: history,
        use_summary: document.getElementById('useSummary').checked,
      }),
    });
    const data = await res.json();
    if (!res.ok) { appendMsg('msg-model', 'Error: ' + data.error); return; }
    appendMsg('msg-model', data.response);
    history.push({role: 'user', content: q});
    history.push({role: 'model', content: data.response});
  } finally { btn.disabled = false; }
}

loadThreads();
</script>
</body>
</html>`
